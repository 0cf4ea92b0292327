package prefs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// File stores preferences in a YAML document keyed by group:
//
//	GoogleAnalytics:
//	  AnonymousClientId: "1700000000.0123456789"
//	  AppOptOut: "false"
type File struct {
	path string
	mu   sync.Mutex
}

// NewFile creates a file-backed store. The file is created on first Save.
func NewFile(path string) *File {
	return &File{path: path}
}

// DefaultFilePath returns the per-user preferences file location.
func DefaultFilePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user config dir: %w", err)
	}
	return filepath.Join(dir, "beacon", "preferences.yaml"), nil
}

// Path returns the backing file path.
func (f *File) Path() string {
	return f.path
}

// Load implements Store
func (f *File) Load(ctx context.Context, key, def string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return def, err
	}
	if v, ok := doc[Group][key]; ok {
		return v, nil
	}
	return def, nil
}

// Save implements Store
func (f *File) Save(ctx context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return err
	}
	if doc[Group] == nil {
		doc[Group] = make(map[string]string)
	}
	doc[Group][key] = value

	return f.write(doc)
}

func (f *File) read() (map[string]map[string]string, error) {
	doc := make(map[string]map[string]string)

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read preferences: %w", err)
	}

	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse preferences %s: %w", f.path, err)
	}
	if doc == nil {
		doc = make(map[string]map[string]string)
	}
	return doc, nil
}

// write replaces the file atomically via a temp file in the same directory.
func (f *File) write(doc map[string]map[string]string) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create preferences dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".preferences-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace preferences: %w", err)
	}
	return nil
}
