// Package state persists catalog, settings and reading state as JSON
// records in a key-value store.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/metcalfc/shelf/internal/book"
	"github.com/metcalfc/shelf/internal/kv"
	"github.com/metcalfc/shelf/internal/notify"
)

// Record keys.
const (
	KeyCatalog  = "catalog"
	KeySettings = "settings"
	KeyTheme    = "theme"
	KeyViewMode = "viewMode"
)

// BookmarksKey returns the key holding the bookmarks of a book.
func BookmarksKey(id book.ID) string {
	return "bookmarks:" + string(id)
}

// ProgressKey returns the key holding the progress of one chapter.
func ProgressKey(id book.ID, chapterIndex int) string {
	return "progress:" + string(id) + ":" + strconv.Itoa(chapterIndex)
}

// StateStore reads and writes named records. Decode failures never reach
// the caller: they are reported through the notifier and the record's
// default is returned instead.
type StateStore struct {
	kv     kv.Store
	notify notify.Notifier
	log    *slog.Logger
}

// NewStateStore wraps store. A nil notifier or logger discards output.
func NewStateStore(store kv.Store, n notify.Notifier, log *slog.Logger) *StateStore {
	if n == nil {
		n = notify.Discard{}
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &StateStore{kv: store, notify: n, log: log}
}

// StateDir returns XDG_STATE_HOME/shelf or ~/.local/state/shelf
func StateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "shelf")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "state", "shelf")
}

// LoadCatalog returns the persisted user books, or none when the record is
// absent or malformed.
func (s *StateStore) LoadCatalog(ctx context.Context) []book.Book {
	var books []book.Book
	if !s.load(ctx, KeyCatalog, &books) {
		return []book.Book{}
	}
	if books == nil {
		return []book.Book{}
	}
	return books
}

// SaveCatalog persists the user books.
func (s *StateStore) SaveCatalog(ctx context.Context, books []book.Book) error {
	if books == nil {
		books = []book.Book{}
	}
	return s.save(ctx, KeyCatalog, books)
}

// LoadSettings merges the persisted settings over the defaults. Each field
// is decoded on its own so one bad field does not discard the others.
func (s *StateStore) LoadSettings(ctx context.Context) book.ReaderSettings {
	out := book.DefaultSettings()

	var fields map[string]json.RawMessage
	if !s.load(ctx, KeySettings, &fields) || fields == nil {
		return out
	}

	bad := false
	decode := func(name string, dst any) {
		raw, ok := fields[name]
		if !ok {
			return
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			bad = true
		}
	}

	var fontSize, lineHeight, maxWidth numberField
	decode("fontSize", &fontSize)
	decode("lineHeight", &lineHeight)
	decode("maxWidth", &maxWidth)
	decode("fontFamily", &out.FontFamily)

	if fontSize.set {
		out.FontSize = fontSize.v
	}
	if lineHeight.set {
		out.LineHeight = lineHeight.v
	}
	if maxWidth.set {
		out.MaxWidth = maxWidth.v
	}

	clamped := out.Clamp()
	if bad || clamped != out {
		s.warn(KeySettings, fmt.Errorf("invalid fields replaced with defaults"))
	}
	return clamped
}

// SaveSettings persists the reader settings.
func (s *StateStore) SaveSettings(ctx context.Context, settings book.ReaderSettings) error {
	return s.save(ctx, KeySettings, settings)
}

// LoadTheme returns the persisted dark-mode flag.
func (s *StateStore) LoadTheme(ctx context.Context) bool {
	var dark bool
	if !s.load(ctx, KeyTheme, &dark) {
		return false
	}
	return dark
}

// SaveTheme persists the dark-mode flag.
func (s *StateStore) SaveTheme(ctx context.Context, dark bool) error {
	return s.save(ctx, KeyTheme, dark)
}

// LoadViewMode returns the persisted library layout, or def.
func (s *StateStore) LoadViewMode(ctx context.Context, def string) string {
	var mode string
	if !s.load(ctx, KeyViewMode, &mode) || mode == "" {
		return def
	}
	return mode
}

// SaveViewMode persists the library layout.
func (s *StateStore) SaveViewMode(ctx context.Context, mode string) error {
	return s.save(ctx, KeyViewMode, mode)
}

// Bookmarks returns the bookmarks of a book, oldest first.
func (s *StateStore) Bookmarks(ctx context.Context, id book.ID) []book.Bookmark {
	var marks []book.Bookmark
	if !s.load(ctx, BookmarksKey(id), &marks) || marks == nil {
		return []book.Bookmark{}
	}
	return marks
}

// AppendBookmark adds bm to the end of a book's bookmark list. An unreadable
// list is replaced by one holding only bm.
func (s *StateStore) AppendBookmark(ctx context.Context, id book.ID, bm book.Bookmark) error {
	marks := s.Bookmarks(ctx, id)
	marks = append(marks, bm)
	return s.save(ctx, BookmarksKey(id), marks)
}

// Progress returns the persisted progress of a chapter, 0 when unknown.
func (s *StateStore) Progress(ctx context.Context, id book.ID, chapterIndex int) int {
	var p int
	if !s.load(ctx, ProgressKey(id, chapterIndex), &p) {
		return 0
	}
	return book.ClampProgress(p)
}

// SetProgress persists the progress of a chapter, clamped to [0,100].
func (s *StateStore) SetProgress(ctx context.Context, id book.ID, chapterIndex, progress int) error {
	return s.save(ctx, ProgressKey(id, chapterIndex), book.ClampProgress(progress))
}

// Forget removes the bookmarks and per-chapter progress of a book.
func (s *StateStore) Forget(ctx context.Context, id book.ID, chapters int) error {
	if err := s.kv.Remove(ctx, BookmarksKey(id)); err != nil {
		return err
	}
	for i := 0; i < chapters; i++ {
		if err := s.kv.Remove(ctx, ProgressKey(id, i)); err != nil {
			return err
		}
	}
	return nil
}

// load decodes key into dst. It reports false when the key is absent or
// could not be read or decoded; failures are surfaced as warnings.
func (s *StateStore) load(ctx context.Context, key string, dst any) bool {
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		s.warn(key, err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		s.warn(key, err)
		return false
	}
	return true
}

func (s *StateStore) save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := s.kv.Set(ctx, key, string(data)); err != nil {
		s.log.Error("saving record failed", "key", key, "error", err)
		s.notify.Notify(notify.Error, "Could not save data; storage may be full")
		return fmt.Errorf("saving %s: %w", key, err)
	}
	return nil
}

func (s *StateStore) warn(key string, err error) {
	s.log.Warn("loading record failed, using defaults", "key", key, "error", err)
	s.notify.Notify(notify.Warning, "Could not load saved "+key+"; using defaults")
}

// numberField decodes a JSON number or a numeric string.
type numberField struct {
	v   float64
	set bool
}

func (n *numberField) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		n.v, n.set = f, true
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	n.v, n.set = f, true
	return nil
}
