package reader

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/metcalfc/shelf/internal/book"
)

type memRecorder struct {
	progress  map[string]int
	bookmarks map[book.ID][]book.Bookmark
	failSave  bool
}

func newMemRecorder() *memRecorder {
	return &memRecorder{
		progress:  make(map[string]int),
		bookmarks: make(map[book.ID][]book.Bookmark),
	}
}

func key(id book.ID, i int) string { return string(id) + ":" + string(rune('0'+i)) }

func (m *memRecorder) Progress(_ context.Context, id book.ID, i int) int {
	return m.progress[key(id, i)]
}

func (m *memRecorder) SetProgress(_ context.Context, id book.ID, i, p int) error {
	m.progress[key(id, i)] = p
	return nil
}

func (m *memRecorder) Bookmarks(_ context.Context, id book.ID) []book.Bookmark {
	return m.bookmarks[id]
}

func (m *memRecorder) AppendBookmark(_ context.Context, id book.ID, bm book.Bookmark) error {
	if m.failSave {
		return errors.New("quota")
	}
	m.bookmarks[id] = append(m.bookmarks[id], bm)
	return nil
}

func testBook(chapters int) book.Book {
	b := book.Book{ID: "b1", Title: "Test"}
	for i := 0; i < chapters; i++ {
		b.Chapters = append(b.Chapters, book.Chapter{
			ID:      i + 1,
			Title:   book.DefaultChapterTitle(i + 1),
			Content: "<p>chapter body</p>",
		})
	}
	return b
}

func TestOpen(t *testing.T) {
	tests := []struct {
		name     string
		chapters int
		index    int
		wantErr  error
	}{
		{"first chapter", 3, 0, nil},
		{"last chapter", 3, 2, nil},
		{"no chapters", 0, 0, ErrNoChapters},
		{"negative index", 3, -1, ErrChapterRange},
		{"past end", 3, 3, ErrChapterRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession(nil)
			err := s.Open(testBook(tt.chapters), tt.index)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Open err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				if s.State() != Idle {
					t.Errorf("failed Open left state %v", s.State())
				}
				return
			}
			if s.State() != Viewing || s.Index() != tt.index {
				t.Errorf("state = %v index = %d", s.State(), s.Index())
			}
		})
	}
}

func TestFailedOpenClosesPreviousBook(t *testing.T) {
	s := NewSession(nil)
	if err := s.Open(testBook(2), 1); err != nil {
		t.Fatal(err)
	}
	if err := s.Open(testBook(0), 0); err == nil {
		t.Fatal("expected error")
	}
	if _, ok := s.Book(); ok {
		t.Error("session still holds a book after failed open")
	}
}

func TestNavigationButtons(t *testing.T) {
	s := NewSession(nil)
	s.Open(testBook(3), 0)

	if s.CanPrevious() || !s.CanNext() {
		t.Errorf("at first chapter: prev=%v next=%v", s.CanPrevious(), s.CanNext())
	}
	s.Next()
	if !s.CanPrevious() || !s.CanNext() {
		t.Errorf("at middle chapter: prev=%v next=%v", s.CanPrevious(), s.CanNext())
	}
	s.Next()
	if !s.CanPrevious() || s.CanNext() {
		t.Errorf("at last chapter: prev=%v next=%v", s.CanPrevious(), s.CanNext())
	}
	if s.Next() {
		t.Error("Next at last chapter should be a no-op")
	}
	if s.Index() != 2 {
		t.Errorf("Index = %d, want 2", s.Index())
	}

	single := NewSession(nil)
	single.Open(testBook(1), 0)
	if single.CanPrevious() || single.CanNext() {
		t.Error("single-chapter book should disable both buttons")
	}
}

// No sequence of Next and Previous calls leaves the chapter range.
func TestNavigationStaysInBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for trial := 0; trial < 50; trial++ {
		n := 1 + rng.Intn(6)
		s := NewSession(nil)
		if err := s.Open(testBook(n), rng.Intn(n)); err != nil {
			t.Fatal(err)
		}
		for step := 0; step < 40; step++ {
			if rng.Intn(2) == 0 {
				s.Next()
			} else {
				s.Previous()
			}
			if s.Index() < 0 || s.Index() > n-1 {
				t.Fatalf("trial %d step %d: index %d outside [0,%d]", trial, step, s.Index(), n-1)
			}
		}
	}
}

func TestGoTo(t *testing.T) {
	s := NewSession(nil)
	if err := s.GoTo(0); !errors.Is(err, ErrNoBook) {
		t.Errorf("GoTo while idle err = %v", err)
	}

	s.Open(testBook(4), 0)
	if err := s.GoTo(3); err != nil || s.Index() != 3 {
		t.Fatalf("GoTo(3) = %v, index %d", err, s.Index())
	}
	if err := s.GoTo(9); !errors.Is(err, ErrChapterRange) {
		t.Errorf("GoTo(9) err = %v", err)
	}
	if s.Active() {
		t.Error("out-of-range GoTo should close the session")
	}
}

func TestProgressResetsOnChapterChange(t *testing.T) {
	ctx := context.Background()
	rec := newMemRecorder()
	s := NewSession(rec)
	s.Open(testBook(3), 0)

	if got, err := s.ObserveProgress(ctx, 150); err != nil || got != 100 {
		t.Fatalf("ObserveProgress(150) = %d, %v", got, err)
	}
	if rec.progress[key("b1", 0)] != 100 {
		t.Errorf("progress not persisted clamped: %v", rec.progress)
	}

	s.Next()
	if s.Progress() != 0 {
		t.Errorf("progress after Next = %d, want 0", s.Progress())
	}
	if got, _ := s.ObserveProgress(ctx, -3); got != 0 {
		t.Errorf("ObserveProgress(-3) = %d", got)
	}

	s.Previous()
	if got := s.SavedProgress(ctx); got != 100 {
		t.Errorf("SavedProgress = %d, want 100", got)
	}
}

func TestObserveProgressIdle(t *testing.T) {
	s := NewSession(newMemRecorder())
	if _, err := s.ObserveProgress(context.Background(), 50); !errors.Is(err, ErrNoBook) {
		t.Errorf("err = %v, want ErrNoBook", err)
	}
}

func TestBookmark(t *testing.T) {
	ctx := context.Background()
	rec := newMemRecorder()
	s := NewSession(rec)
	s.now = func() time.Time { return time.UnixMilli(1700000000123) }

	if _, err := s.Bookmark(ctx); !errors.Is(err, ErrNoBook) {
		t.Fatalf("Bookmark while idle err = %v", err)
	}
	if len(rec.bookmarks) != 0 {
		t.Fatal("idle Bookmark wrote storage")
	}

	s.Open(testBook(3), 1)
	s.ObserveProgress(ctx, 42)
	bm, err := s.Bookmark(ctx)
	if err != nil {
		t.Fatalf("Bookmark: %v", err)
	}
	if bm.ChapterIndex != 1 || bm.ChapterID != 2 || bm.Progress != 42 || bm.ID != 1700000000123 {
		t.Errorf("bookmark = %+v", bm)
	}

	// Add-only: a second bookmark at the same spot is appended.
	s.Bookmark(ctx)
	if got := s.Bookmarks(ctx); len(got) != 2 {
		t.Errorf("Bookmarks = %d, want 2", len(got))
	}
}

func TestBookmarkSaveFailure(t *testing.T) {
	rec := newMemRecorder()
	rec.failSave = true
	s := NewSession(rec)
	s.Open(testBook(1), 0)
	if _, err := s.Bookmark(context.Background()); err == nil {
		t.Error("expected save error")
	}
}

func TestRefresh(t *testing.T) {
	s := NewSession(nil)
	s.Open(testBook(4), 3)

	shorter := testBook(2)
	shorter.Title = "Edited"
	if !s.Refresh(shorter) {
		t.Fatal("Refresh closed the session")
	}
	b, _ := s.Book()
	if b.Title != "Edited" || s.Index() != 1 {
		t.Errorf("after Refresh: title %q index %d", b.Title, s.Index())
	}

	other := testBook(2)
	other.ID = "other"
	other.Title = "Other"
	s.Refresh(other)
	if b, _ := s.Book(); b.Title != "Edited" {
		t.Error("Refresh with a different id replaced the book")
	}

	if s.Refresh(testBook(0)) {
		t.Error("Refresh with no chapters should close the session")
	}
}

func TestPositionAndTOC(t *testing.T) {
	s := NewSession(nil)
	if cur, total := s.Position(); cur != 0 || total != 0 {
		t.Errorf("idle Position = %d/%d", cur, total)
	}
	s.Open(testBook(3), 1)
	if cur, total := s.Position(); cur != 2 || total != 3 {
		t.Errorf("Position = %d/%d, want 2/3", cur, total)
	}
	if s.CurrentChapterTitle() != "第2章" {
		t.Errorf("CurrentChapterTitle = %q", s.CurrentChapterTitle())
	}

	toc := s.TOC()
	if len(toc) != 3 {
		t.Fatalf("TOC has %d entries", len(toc))
	}
	for i, e := range toc {
		if e.Current != (i == 1) {
			t.Errorf("entry %d Current = %v", i, e.Current)
		}
		if e.Preview != "chapter body" {
			t.Errorf("entry %d Preview = %q", i, e.Preview)
		}
	}
}

func TestStateString(t *testing.T) {
	if Idle.String() != "idle" || Viewing.String() != "viewing" {
		t.Error("unexpected State strings")
	}
}
