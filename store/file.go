package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	htmlfwd "github.com/htmlfwd/go-client"
	"gopkg.in/yaml.v3"
)

// FileStore keeps the endpoint list in a YAML file:
//
//	endpoints:
//	  - label: devbox
//	    host: devbox:8888
type FileStore struct {
	path string
	mu   sync.Mutex
}

type fileDocument struct {
	Endpoints []htmlfwd.EndpointSpec `yaml:"endpoints"`
}

// NewFileStore returns a store backed by the file at path. The file is
// created on the first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load returns the stored list. A missing file yields nil; a file that
// holds no endpoints yields an empty, non-nil list.
func (s *FileStore) Load(ctx context.Context) ([]htmlfwd.EndpointSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	if doc.Endpoints == nil {
		return []htmlfwd.EndpointSpec{}, nil
	}
	return doc.Endpoints, nil
}

// Save replaces the stored list. The file is written to a temporary
// sibling and renamed into place.
func (s *FileStore) Save(ctx context.Context, specs []htmlfwd.EndpointSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if specs == nil {
		specs = []htmlfwd.EndpointSpec{}
	}
	data, err := yaml.Marshal(fileDocument{Endpoints: specs})
	if err != nil {
		return fmt.Errorf("encode endpoints: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("rename into %s: %w", s.path, err)
	}
	return nil
}
