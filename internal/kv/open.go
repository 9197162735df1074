package kv

import (
	"context"
	"fmt"
	"path/filepath"
)

// Backend names a Store implementation.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendFile   Backend = "file"
	BackendSQLite Backend = "sqlite"
	BackendRedis  Backend = "redis"
)

// SQLiteFileName is the database file used when Options.Path is empty.
const SQLiteFileName = "shelf.db"

// Options selects and configures a backend.
type Options struct {
	Backend Backend
	// Dir holds the file store and the default SQLite database.
	Dir   string
	Path  string
	Quota int
	Redis RedisOptions
}

// Open returns the Store selected by opts.Backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendMemory:
		return NewMemory(opts.Quota), nil
	case BackendFile, "":
		return OpenFile(opts.Dir)
	case BackendSQLite:
		path := opts.Path
		if path == "" {
			path = filepath.Join(opts.Dir, SQLiteFileName)
		}
		return OpenSQLite(path)
	case BackendRedis:
		return OpenRedis(ctx, opts.Redis)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}
