// Package reader provides the chapter-by-chapter reading session.
package reader

import (
	"context"
	"errors"
	"time"

	"github.com/metcalfc/shelf/internal/book"
)

var (
	ErrNoBook       = errors.New("no chapter is open")
	ErrNoChapters   = errors.New("book has no chapters")
	ErrChapterRange = errors.New("chapter does not exist")
)

// State is the session state.
type State int

const (
	Idle State = iota
	Viewing
)

func (s State) String() string {
	if s == Viewing {
		return "viewing"
	}
	return "idle"
}

// Recorder persists per-chapter progress and bookmarks.
type Recorder interface {
	Progress(ctx context.Context, id book.ID, chapterIndex int) int
	SetProgress(ctx context.Context, id book.ID, chapterIndex, progress int) error
	Bookmarks(ctx context.Context, id book.ID) []book.Bookmark
	AppendBookmark(ctx context.Context, id book.ID, bm book.Bookmark) error
}

// Session tracks the open book, the current chapter and the last observed
// scroll progress within it.
type Session struct {
	book     book.Book
	state    State
	index    int
	progress int

	rec Recorder
	now func() time.Time
}

// NewSession returns an idle session. rec may be nil, in which case nothing
// is persisted.
func NewSession(rec Recorder) *Session {
	return &Session{rec: rec, now: time.Now}
}

// State returns the current state.
func (s *Session) State() State { return s.state }

// Active reports whether a chapter is open.
func (s *Session) Active() bool { return s.state == Viewing }

// Book returns the open book.
func (s *Session) Book() (book.Book, bool) {
	if !s.Active() {
		return book.Book{}, false
	}
	return s.book, true
}

// Index returns the current chapter index.
func (s *Session) Index() int { return s.index }

// Chapter returns the current chapter.
func (s *Session) Chapter() (book.Chapter, bool) {
	if !s.Active() {
		return book.Chapter{}, false
	}
	return s.book.Chapters[s.index], true
}

// Position returns the 1-based chapter number and the chapter count.
func (s *Session) Position() (current, total int) {
	if !s.Active() {
		return 0, 0
	}
	return s.index + 1, len(s.book.Chapters)
}

// Open starts reading b at chapter index. On failure the session is left
// idle.
func (s *Session) Open(b book.Book, index int) error {
	if !b.Readable() {
		s.Close()
		return ErrNoChapters
	}
	if index < 0 || index >= len(b.Chapters) {
		s.Close()
		return ErrChapterRange
	}
	s.book = b
	s.state = Viewing
	s.enter(index)
	return nil
}

// Next moves to the following chapter. At the last chapter it does nothing
// and returns false.
func (s *Session) Next() bool {
	if !s.CanNext() {
		return false
	}
	s.enter(s.index + 1)
	return true
}

// Previous moves to the preceding chapter. At the first chapter it does
// nothing and returns false.
func (s *Session) Previous() bool {
	if !s.CanPrevious() {
		return false
	}
	s.enter(s.index - 1)
	return true
}

// GoTo jumps to chapter index. An index outside the book closes the
// session.
func (s *Session) GoTo(index int) error {
	if !s.Active() {
		return ErrNoBook
	}
	if index < 0 || index >= len(s.book.Chapters) {
		s.Close()
		return ErrChapterRange
	}
	s.enter(index)
	return nil
}

// Close returns the session to idle.
func (s *Session) Close() {
	s.book = book.Book{}
	s.state = Idle
	s.index = 0
	s.progress = 0
}

// CanPrevious reports whether Previous would move.
func (s *Session) CanPrevious() bool {
	return s.Active() && s.index > 0
}

// CanNext reports whether Next would move.
func (s *Session) CanNext() bool {
	return s.Active() && s.index < len(s.book.Chapters)-1
}

// Refresh swaps in an updated copy of the open book. The chapter index is
// pulled back inside the new chapter range; a book left without chapters
// closes the session. It reports whether the session is still active.
func (s *Session) Refresh(b book.Book) bool {
	if !s.Active() || b.ID != s.book.ID {
		return s.Active()
	}
	if !b.Readable() {
		s.Close()
		return false
	}
	s.book = b
	if s.index >= len(b.Chapters) {
		s.enter(len(b.Chapters) - 1)
	}
	return true
}

// Progress returns the last observed progress of the current chapter.
func (s *Session) Progress() int { return s.progress }

// SavedProgress returns the persisted progress of the current chapter.
func (s *Session) SavedProgress(ctx context.Context) int {
	if !s.Active() || s.rec == nil {
		return 0
	}
	return s.rec.Progress(ctx, s.book.ID, s.index)
}

// ObserveProgress records a scroll percentage for the current chapter,
// clamped to [0,100], and persists it.
func (s *Session) ObserveProgress(ctx context.Context, p int) (int, error) {
	if !s.Active() {
		return 0, ErrNoBook
	}
	s.progress = book.ClampProgress(p)
	if s.rec == nil {
		return s.progress, nil
	}
	return s.progress, s.rec.SetProgress(ctx, s.book.ID, s.index, s.progress)
}

// Bookmark appends a bookmark for the current chapter at the last observed
// progress.
func (s *Session) Bookmark(ctx context.Context) (book.Bookmark, error) {
	ch, ok := s.Chapter()
	if !ok {
		return book.Bookmark{}, ErrNoBook
	}
	bm := book.NewBookmark(ch, s.index, s.progress, s.now())
	if s.rec != nil {
		if err := s.rec.AppendBookmark(ctx, s.book.ID, bm); err != nil {
			return book.Bookmark{}, err
		}
	}
	return bm, nil
}

// Bookmarks returns the persisted bookmarks of the open book.
func (s *Session) Bookmarks(ctx context.Context) []book.Bookmark {
	if !s.Active() || s.rec == nil {
		return nil
	}
	return s.rec.Bookmarks(ctx, s.book.ID)
}

// CurrentChapterTitle returns the title of the current chapter.
func (s *Session) CurrentChapterTitle() string {
	if ch, ok := s.Chapter(); ok {
		return ch.Title
	}
	return ""
}

// enter makes index the current chapter and resets progress tracking.
func (s *Session) enter(index int) {
	s.index = index
	s.progress = 0
}
