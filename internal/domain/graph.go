package domain

// DependencyCycle returns the path from start back to itself through deps,
// or nil when start is not on a cycle. deps lists the direct dependencies
// of a service; unknown names have none.
func DependencyCycle(start string, deps func(name string) []string) []string {
	visited := map[string]bool{start: true}
	path := []string{start}

	var walk func(name string) bool
	walk = func(name string) bool {
		for _, dep := range deps(name) {
			if dep == start {
				path = append(path, dep)
				return true
			}
			if visited[dep] {
				continue
			}
			visited[dep] = true
			path = append(path, dep)
			if walk(dep) {
				return true
			}
			path = path[:len(path)-1]
		}
		return false
	}

	if walk(start) {
		return path
	}
	return nil
}
