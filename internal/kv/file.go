package kv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/natefinch/atomic"
)

// FileName is the name of the file written by File inside its directory.
const FileName = "store.json"

// CorruptSuffix is appended to the name of an unreadable store file when
// it is moved aside.
const CorruptSuffix = ".corrupt"

// File keeps every key in a single JSON object on disk. Each write replaces
// the file atomically.
type File struct {
	path    string
	data    map[string]string
	corrupt error
	mu      sync.RWMutex
}

// OpenFile loads (or creates) the store in dir. A store file that is not
// valid JSON does not fail the open: it is moved aside, the store starts
// empty, and Corrupt reports what happened.
func OpenFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	f := &File{
		path: filepath.Join(dir, FileName),
		data: make(map[string]string),
	}
	if err := f.load(); err != nil {
		return nil, err
	}
	return f, nil
}

// Corrupt returns the parse error of a store file that was set aside when
// the store was opened, or nil.
func (f *File) Corrupt() error { return f.corrupt }

// Path returns the location of the backing file.
func (f *File) Path() string { return f.path }

func (f *File) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *File) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	old, had := f.data[key]
	f.data[key] = value
	if err := f.save(); err != nil {
		if had {
			f.data[key] = old
		} else {
			delete(f.data, key)
		}
		return err
	}
	return nil
}

func (f *File) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	old, had := f.data[key]
	if !had {
		return nil
	}
	delete(f.data, key)
	if err := f.save(); err != nil {
		f.data[key] = old
		return err
	}
	return nil
}

func (f *File) Close() error { return nil }

func (f *File) load() error {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", f.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &f.data); err != nil {
		f.data = make(map[string]string)
		f.corrupt = fmt.Errorf("parsing %s: %w", f.path, err)
		if err := os.Rename(f.path, f.path+CorruptSuffix); err != nil {
			f.corrupt = errors.Join(f.corrupt, err)
		}
	}
	return nil
}

func (f *File) save() error {
	data, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(f.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing %s: %w", f.path, err)
	}
	return nil
}
