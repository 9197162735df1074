package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/metcalfc/shelf/internal/book"
)

// Result is the outcome of loading one bundled file.
type Result struct {
	Path string
	Book book.Book
	Err  error
}

// Loader ingests every bundled title in a directory.
type Loader struct {
	// Concurrency bounds the number of files parsed at once. Values below
	// one load sequentially.
	Concurrency int
	Logger      *slog.Logger
	// Progress, when set, is called after each file finishes. Calls may
	// come from several goroutines.
	Progress func(done, total int, r Result)
}

// Load parses every file Discover returns for dir. Results come back in
// discovery order. A failing file is logged and recorded in its Result;
// it never stops the others. Only a bad manifest or a cancelled context
// fails the whole load.
func (l *Loader) Load(ctx context.Context, dir string) ([]Result, error) {
	log := l.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	paths, err := Discover(dir)
	if err != nil {
		return nil, err
	}

	limit := l.Concurrency
	if limit < 1 {
		limit = 1
	}

	results := make([]Result, len(paths))
	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, p := range paths {
		if gctx.Err() != nil {
			break
		}
		i, p := i, p
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r := parseSafely(p)
			if r.Err == nil {
				r.Book.ID = book.BuiltInID(relPath(dir, p))
			}
			results[i] = r
			if r.Err != nil {
				log.Warn("skipping bundled title", "path", p, "error", r.Err)
			} else {
				log.Debug("loaded bundled title", "path", p, "title", r.Book.Title, "chapters", len(r.Book.Chapters))
			}
			if l.Progress != nil {
				l.Progress(int(done.Add(1)), len(paths), r)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// Books returns the successfully parsed books from results in order.
func Books(results []Result) []book.Book {
	var out []book.Book
	for _, r := range results {
		if r.Err == nil {
			out = append(out, r.Book)
		}
	}
	return out
}

// relPath is p relative to dir with forward slashes, or p itself when it
// lies outside dir.
func relPath(dir, p string) string {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(rel)
}

func parseSafely(p string) (r Result) {
	r.Path = p
	defer func() {
		if v := recover(); v != nil {
			r.Err = fmt.Errorf("panic parsing %s: %v", p, v)
		}
	}()
	r.Book, r.Err = Parse(p)
	return r
}
