package discovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/MrSnakeDoc/sentinel/internal/domain"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Source lists the services that should currently be supervised.
type Source interface {
	Name() string
	Discover(ctx context.Context) ([]domain.ServiceConfig, error)
}

// FileSource reads services from a YAML file on every call.
type FileSource struct {
	filePath string
	validate *validator.Validate
}

// NewFileSource creates a file-backed source
func NewFileSource(filePath string) *FileSource {
	return &FileSource{
		filePath: filePath,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (s *FileSource) Name() string {
	return "file:" + s.filePath
}

// Path returns the watched file path.
func (s *FileSource) Path() string {
	return s.filePath
}

func (s *FileSource) Discover(ctx context.Context) ([]domain.ServiceConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := s.Load()
	if err != nil {
		return nil, err
	}
	return MapServices(file.Services), nil
}

// Load reads, expands and validates the file.
func (s *FileSource) Load() (*File, error) {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read services file: %w", err)
	}
	return s.Parse(data)
}

// Parse decodes raw YAML. ${VAR} references are expanded from the environment.
func (s *FileSource) Parse(data []byte) (*File, error) {
	data = []byte(os.ExpandEnv(string(data)))

	var file File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse services yaml: %w", err)
	}

	if err := s.validate.Struct(&file); err != nil {
		return nil, fmt.Errorf("invalid services file: %w", err)
	}

	graph := make(map[string][]string, len(file.Services))
	for _, e := range file.Services {
		if _, dup := graph[e.Name]; dup {
			return nil, fmt.Errorf("invalid services file: service %q declared twice", e.Name)
		}
		graph[e.Name] = e.Dependencies
	}
	for _, e := range file.Services {
		if slices.Contains(e.Dependencies, e.Name) {
			return nil, fmt.Errorf("invalid services file: service %q depends on itself", e.Name)
		}
		cycle := domain.DependencyCycle(e.Name, func(name string) []string { return graph[name] })
		if cycle != nil {
			return nil, fmt.Errorf("invalid services file: %w", &domain.DependencyCycleError{Path: cycle})
		}
	}

	return &file, nil
}
