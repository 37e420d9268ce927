//go:build !linux && !darwin && !freebsd

package health

import "errors"

func diskUsage(path string) (DiskUsage, error) {
	return DiskUsage{}, errors.New("disk usage not supported on this platform")
}
