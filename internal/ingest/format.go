// Package ingest turns bundled documents into built-in books.
package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/metcalfc/shelf/internal/book"
	"github.com/metcalfc/shelf/internal/library"
)

// Defaults for metadata a document does not provide.
const (
	DefaultAuthor   = "unknown"
	DefaultCategory = "built-in"
)

// ErrUnsupported is returned for files no registered format handles.
var ErrUnsupported = errors.New("unsupported file format")

// Format parses one kind of document into a book.
type Format interface {
	Name() string
	Extensions() []string
	Parse(filename string) (book.Book, error)
}

var registry []Format

// Register adds a format to the registry.
func Register(f Format) {
	registry = append(registry, f)
}

// ForFile returns the format registered for the extension of filename.
func ForFile(filename string) (Format, bool) {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, f := range registry {
		for _, e := range f.Extensions() {
			if ext == e {
				return f, true
			}
		}
	}
	return nil, false
}

// Supported reports whether some format handles filename.
func Supported(filename string) bool {
	_, ok := ForFile(filename)
	return ok
}

// Parse reads filename with the matching format and fills in defaults for
// missing metadata. The result is marked built-in with a fresh id.
func Parse(filename string) (book.Book, error) {
	f, ok := ForFile(filename)
	if !ok {
		return book.Book{}, fmt.Errorf("%s: %w", filename, ErrUnsupported)
	}
	if _, err := os.Stat(filename); err != nil {
		return book.Book{}, err
	}
	b, err := f.Parse(filename)
	if err != nil {
		return book.Book{}, fmt.Errorf("parsing %s as %s: %w", filename, f.Name(), err)
	}
	return finish(b, filename), nil
}

// SupportedFormats returns registered format names with their extensions.
func SupportedFormats() []string {
	var out []string
	for _, f := range registry {
		out = append(out, f.Name()+" ("+strings.Join(f.Extensions(), ", ")+")")
	}
	return out
}

func finish(b book.Book, filename string) book.Book {
	b.Title = strings.TrimSpace(b.Title)
	if b.Title == "" {
		b.Title = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	}
	if book.IsBlank(b.Author) {
		b.Author = DefaultAuthor
	}
	if book.IsBlank(b.Category) || strings.EqualFold(strings.TrimSpace(b.Category), library.All) {
		b.Category = DefaultCategory
	}
	b.Description = strings.TrimSpace(b.Description)
	b.Chapters = book.Renumber(b.Chapters)
	b.BuiltIn = true
	b.Source = filepath.Base(filename)
	b.ID = book.BuiltInID(b.Source)
	return b
}

// resolveCover makes a relative cover path relative to the document's
// directory. URLs and absolute paths are returned unchanged.
func resolveCover(cover, filename string) string {
	cover = strings.TrimSpace(cover)
	if cover == "" {
		return ""
	}
	if strings.Contains(cover, "://") || strings.HasPrefix(cover, "data:") || filepath.IsAbs(cover) {
		return cover
	}
	return filepath.ToSlash(filepath.Join(filepath.Dir(filename), cover))
}
