// Package app is the coordinator that owns the catalog, the reading
// session and the persisted preferences, and that front ends drive.
package app

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"

	"github.com/metcalfc/shelf/internal/book"
	"github.com/metcalfc/shelf/internal/catalog"
	"github.com/metcalfc/shelf/internal/ingest"
	"github.com/metcalfc/shelf/internal/kv"
	"github.com/metcalfc/shelf/internal/library"
	"github.com/metcalfc/shelf/internal/notify"
	"github.com/metcalfc/shelf/internal/reader"
	"github.com/metcalfc/shelf/internal/state"
)

var (
	ErrNotFound       = errors.New("book not found")
	ErrWrongPassword  = errors.New("wrong password")
	ErrUnknownSetting = errors.New("unknown setting")
	ErrInvalidSetting = errors.New("invalid setting value")
)

// View is the screen the front end should show.
type View string

const (
	ViewLibrary View = "library"
	ViewReader  View = "reader"
)

// Setting keys accepted by UpdateSetting.
const (
	SettingFontSize   = "fontSize"
	SettingLineHeight = "lineHeight"
	SettingFontFamily = "fontFamily"
	SettingMaxWidth   = "maxWidth"
)

// Options configures an App.
type Options struct {
	Store    kv.Store
	Notifier notify.Notifier
	Logger   *slog.Logger

	// BundledDir holds the built-in titles. Empty skips ingestion.
	BundledDir  string
	Concurrency int
	// Progress is passed to the ingestion loader.
	Progress func(done, total int, r ingest.Result)
}

// App holds all application state. Start must run before the front end
// binds to it. Methods are safe for concurrent use.
type App struct {
	mu sync.Mutex

	opts    Options
	store   *state.StateStore
	catalog *catalog.Store
	session *reader.Session
	notify  notify.Notifier
	log     *slog.Logger

	settings book.ReaderSettings
	dark     bool
	mode     library.Mode
	query    library.Query
	view     View
}

// New builds an App over opts.Store, or over an unlimited in-memory store
// when none is given. Nothing is loaded until Start.
func New(opts Options) *App {
	if opts.Store == nil {
		opts.Store = kv.NewMemory(0)
	}
	n := opts.Notifier
	if n == nil {
		n = notify.Discard{}
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	st := state.NewStateStore(opts.Store, n, log)
	return &App{
		opts:     opts,
		store:    st,
		catalog:  catalog.New(nil, st),
		session:  reader.NewSession(st),
		notify:   n,
		log:      log,
		settings: book.DefaultSettings(),
		mode:     library.Grid,
		query:    library.Query{Category: library.All},
		view:     ViewLibrary,
	}
}

// Start loads persisted state and then ingests the bundled titles. Failed
// titles are skipped; only a cancelled context or an unreadable manifest
// is returned as an error, and persisted state stays loaded either way.
func (a *App) Start(ctx context.Context) error {
	a.Load(ctx)
	return a.Ingest(ctx)
}

// Load replaces in-memory state with what the store holds. Malformed
// records fall back to their defaults with a warning. It must not run
// concurrently with other methods.
func (a *App) Load(ctx context.Context) {
	user := a.store.LoadCatalog(ctx)
	settings := a.store.LoadSettings(ctx)
	dark := a.store.LoadTheme(ctx)
	mode := library.ParseMode(a.store.LoadViewMode(ctx, string(library.Grid)))

	a.mu.Lock()
	defer a.mu.Unlock()
	a.catalog = catalog.New(user, a.store)
	a.settings = settings
	a.dark = dark
	a.mode = mode
	a.log.Info("loaded state", "books", len(user), "dark", dark, "mode", mode)
}

// Ingest loads the bundled directory into the built-in collection,
// replacing what was there.
func (a *App) Ingest(ctx context.Context) error {
	if a.opts.BundledDir == "" {
		return nil
	}
	l := &ingest.Loader{
		Concurrency: a.opts.Concurrency,
		Logger:      a.log,
		Progress:    a.opts.Progress,
	}
	results, err := l.Load(ctx, a.opts.BundledDir)
	if err != nil {
		a.notify.Notify(notify.Warning, "Could not load bundled books")
		return fmt.Errorf("loading bundled books: %w", err)
	}
	books := ingest.Books(results)
	a.catalog.SetBuiltIn(books)
	a.log.Info("ingested bundled books", "loaded", len(books), "failed", len(results)-len(books))
	return nil
}

// Books returns every book, user books first.
func (a *App) Books() []book.Book {
	return a.catalog.All()
}

// Find looks up a book by id.
func (a *App) Find(id book.ID) (book.Book, bool) {
	return a.catalog.Find(id)
}

// CreateBook validates the form and adds a user book.
func (a *App) CreateBook(ctx context.Context, f Form) (book.Book, error) {
	if err := f.Validate(true); err != nil {
		a.reject(err)
		return book.Book{}, err
	}
	b := a.catalog.Add(ctx, f.toBook())
	a.log.Info("book created", "id", b.ID, "chapters", len(b.Chapters))
	a.notify.Notify(notify.Info, "Book created")
	return b, nil
}

// Authorize checks the edit password of a user book and returns the book.
// The comparison is plaintext: it keeps casual edits out and nothing more.
func (a *App) Authorize(id book.ID, password string) (book.Book, error) {
	b, ok := a.catalog.Find(id)
	switch {
	case !ok:
		a.notify.Notify(notify.Error, "Book not found")
		return book.Book{}, ErrNotFound
	case b.BuiltIn:
		a.notify.Notify(notify.Warning, "Built-in books cannot be edited")
		return book.Book{}, catalog.ErrReadOnly
	}
	if subtle.ConstantTimeCompare([]byte(password), []byte(b.Password)) != 1 {
		a.notify.Notify(notify.Error, "Wrong password")
		return book.Book{}, ErrWrongPassword
	}
	return b, nil
}

// EditBook replaces a user book's fields and chapters after checking its
// password. The id and password are kept. An open reader follows the edit.
func (a *App) EditBook(ctx context.Context, id book.ID, password string, f Form) (book.Book, error) {
	old, err := a.Authorize(id, password)
	if err != nil {
		return book.Book{}, err
	}
	if err := f.Validate(false); err != nil {
		a.reject(err)
		return book.Book{}, err
	}

	b := f.toBook()
	b.ID = old.ID
	b.Password = old.Password
	ok, err := a.catalog.Update(ctx, b)
	if !ok {
		if err == nil {
			err = ErrNotFound
		}
		return book.Book{}, err
	}
	if err != nil {
		a.log.Warn("edited book not saved", "id", id, "error", err)
	}

	a.mu.Lock()
	if !a.session.Refresh(b) && a.view == ViewReader {
		a.view = ViewLibrary
	}
	a.mu.Unlock()

	a.log.Info("book updated", "id", id, "chapters", len(b.Chapters))
	a.notify.Notify(notify.Info, "Book updated")
	return b, nil
}

// DeleteBook removes a user book along with its bookmarks and progress.
// Deleting the open book closes the reader.
func (a *App) DeleteBook(ctx context.Context, id book.ID) error {
	b, found := a.catalog.Find(id)
	if found && b.BuiltIn {
		a.notify.Notify(notify.Warning, "Built-in books cannot be deleted")
		return catalog.ErrReadOnly
	}
	if _, err := a.catalog.Delete(ctx, id); errors.Is(err, catalog.ErrReadOnly) {
		return err
	} else if err != nil {
		a.log.Warn("deletion not saved", "id", id, "error", err)
	}
	if found {
		if err := a.store.Forget(ctx, id, len(b.Chapters)); err != nil {
			a.log.Warn("could not remove reading state", "id", id, "error", err)
		}
	}

	a.mu.Lock()
	if cur, ok := a.session.Book(); ok && cur.ID == id {
		a.session.Close()
		a.view = ViewLibrary
	}
	a.mu.Unlock()

	a.log.Info("book deleted", "id", id, "existed", found)
	a.notify.Notify(notify.Info, "Book deleted")
	return nil
}

// OpenBook starts reading a book at the given chapter index. On failure
// the library view is shown.
func (a *App) OpenBook(ctx context.Context, id book.ID, index int) error {
	b, ok := a.catalog.Find(id)
	if !ok {
		a.notify.Notify(notify.Error, "Book not found")
		return ErrNotFound
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.session.Open(b, index); err != nil {
		a.failReader(err)
		return err
	}
	a.view = ViewReader
	a.log.Debug("opened book", "id", id, "chapter", index)
	return nil
}

// NextChapter advances one chapter. It reports false at the last chapter.
func (a *App) NextChapter() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session.Next()
}

// PreviousChapter goes back one chapter. It reports false at the first.
func (a *App) PreviousChapter() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session.Previous()
}

// GoToChapter jumps to a chapter. An index outside the book closes the
// reader and shows the library.
func (a *App) GoToChapter(index int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.session.GoTo(index); err != nil {
		a.failReader(err)
		return err
	}
	return nil
}

// CloseReader returns to the library.
func (a *App) CloseReader() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.session.Close()
	a.view = ViewLibrary
}

// ObserveProgress records the scroll percentage of the current chapter.
func (a *App) ObserveProgress(ctx context.Context, p int) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session.ObserveProgress(ctx, p)
}

// AddBookmark bookmarks the current chapter at the last observed progress.
func (a *App) AddBookmark(ctx context.Context) (book.Bookmark, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	bm, err := a.session.Bookmark(ctx)
	switch {
	case errors.Is(err, reader.ErrNoBook):
		a.notify.Notify(notify.Error, "Cannot add bookmark: no chapter is open")
		return bm, err
	case err != nil:
		a.notify.Notify(notify.Error, "Could not save bookmark")
		return bm, err
	}
	a.notify.Notify(notify.Info, "Bookmark added")
	return bm, nil
}

// ToggleBookmark adds a bookmark. Bookmarks are never removed.
func (a *App) ToggleBookmark(ctx context.Context) (book.Bookmark, error) {
	return a.AddBookmark(ctx)
}

// Bookmarks returns the bookmarks of the open book.
func (a *App) Bookmarks(ctx context.Context) []book.Bookmark {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session.Bookmarks(ctx)
}

// BookmarksFor returns the bookmarks of any book.
func (a *App) BookmarksFor(ctx context.Context, id book.ID) []book.Bookmark {
	return a.store.Bookmarks(ctx, id)
}

// ReaderView is what the reader screen renders.
type ReaderView struct {
	Book        book.Book
	Chapter     book.Chapter
	Index       int
	Total       int
	CanPrevious bool
	CanNext     bool
	Progress    int
}

// Reader returns the reader screen state. ok is false when no book is open.
func (a *App) Reader() (ReaderView, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.session.Book()
	if !ok {
		return ReaderView{}, false
	}
	ch, _ := a.session.Chapter()
	return ReaderView{
		Book:        b,
		Chapter:     ch,
		Index:       a.session.Index(),
		Total:       len(b.Chapters),
		CanPrevious: a.session.CanPrevious(),
		CanNext:     a.session.CanNext(),
		Progress:    a.session.Progress(),
	}, true
}

// TOC lists the chapters of the open book.
func (a *App) TOC() []reader.TOCEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session.TOC()
}

// SavedProgress returns the stored progress of the current chapter, for
// restoring the scroll position.
func (a *App) SavedProgress(ctx context.Context) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session.SavedProgress(ctx)
}

// UpdateSetting sets one reader setting from its string form, clamps it
// into range and persists all settings.
func (a *App) UpdateSetting(ctx context.Context, key, value string) (book.ReaderSettings, error) {
	a.mu.Lock()
	s := a.settings
	a.mu.Unlock()

	switch key {
	case SettingFontFamily:
		s.FontFamily = value
	case SettingFontSize, SettingLineHeight, SettingMaxWidth:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return s, fmt.Errorf("%s=%q: %w", key, value, ErrInvalidSetting)
		}
		switch key {
		case SettingFontSize:
			s.FontSize = v
		case SettingLineHeight:
			s.LineHeight = v
		default:
			s.MaxWidth = v
		}
	default:
		return s, fmt.Errorf("%q: %w", key, ErrUnknownSetting)
	}
	s = s.Clamp()

	a.mu.Lock()
	a.settings = s
	a.mu.Unlock()
	return s, a.store.SaveSettings(ctx, s)
}

// Settings returns the reader settings.
func (a *App) Settings() book.ReaderSettings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settings
}

// ToggleTheme flips dark mode and persists it.
func (a *App) ToggleTheme(ctx context.Context) bool {
	a.mu.Lock()
	a.dark = !a.dark
	dark := a.dark
	a.mu.Unlock()
	_ = a.store.SaveTheme(ctx, dark)
	return dark
}

// Dark reports whether dark mode is on.
func (a *App) Dark() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dark
}

// ToggleViewMode switches the library between grid and list and persists
// the choice.
func (a *App) ToggleViewMode(ctx context.Context) library.Mode {
	a.mu.Lock()
	a.mode = a.mode.Toggle()
	mode := a.mode
	a.mu.Unlock()
	_ = a.store.SaveViewMode(ctx, string(mode))
	return mode
}

// SetSearch sets the library search term.
func (a *App) SetSearch(term string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.query.Search = term
}

// SetCategory selects a category chip.
func (a *App) SetCategory(category string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.query.Category = category
}

// Library projects the catalog through the current search, category and
// layout.
func (a *App) Library() library.Page {
	a.mu.Lock()
	q, mode := a.query, a.mode
	a.mu.Unlock()
	return library.Project(a.catalog.All(), q, mode)
}

// View returns the screen that should be showing.
func (a *App) View() View {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.view
}

// failReader closes the session after a navigation error and falls back to
// the library. Callers hold a.mu.
func (a *App) failReader(err error) {
	a.session.Close()
	a.view = ViewLibrary
	a.log.Warn("reader closed", "error", err)
	if errors.Is(err, reader.ErrNoChapters) {
		a.notify.Notify(notify.Error, "This book has no chapters")
		return
	}
	a.notify.Notify(notify.Error, "Chapter does not exist")
}

func (a *App) reject(err error) {
	switch {
	case errors.Is(err, ErrMissingFields):
		a.notify.Notify(notify.Error, "Please fill in the required fields")
	case errors.Is(err, ErrReservedName):
		a.notify.Notify(notify.Error, "Please choose another category")
	case errors.Is(err, ErrNoChapters):
		a.notify.Notify(notify.Error, "Please add at least one chapter")
	}
}
