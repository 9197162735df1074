package state

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/metcalfc/shelf/internal/book"
	"github.com/metcalfc/shelf/internal/kv"
	"github.com/metcalfc/shelf/internal/notify"
)

func newTestStore(t *testing.T) (*StateStore, *kv.Memory, *notify.Log) {
	t.Helper()
	mem := kv.NewMemory(0)
	log := notify.NewLog(16, nil)
	return NewStateStore(mem, log, nil), mem, log
}

func TestKeys(t *testing.T) {
	if got := BookmarksKey("b1"); got != "bookmarks:b1" {
		t.Errorf("BookmarksKey = %q", got)
	}
	if got := ProgressKey("b1", 3); got != "progress:b1:3" {
		t.Errorf("ProgressKey = %q", got)
	}
}

func TestStateDir(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_STATE_HOME", tmp)
	if got, want := StateDir(), filepath.Join(tmp, "shelf"); got != want {
		t.Errorf("StateDir() = %q, want %q", got, want)
	}
}

func TestCatalogRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _, log := newTestStore(t)

	if got := s.LoadCatalog(ctx); len(got) != 0 {
		t.Fatalf("empty store returned %d books", len(got))
	}

	books := []book.Book{{
		ID:       "b1",
		Title:    "Night",
		Author:   "Someone",
		Password: "pw",
		Chapters: []book.Chapter{{ID: 1, Title: "One", Content: "<p>x</p>"}},
	}}
	if err := s.SaveCatalog(ctx, books); err != nil {
		t.Fatalf("SaveCatalog: %v", err)
	}
	if diff := cmp.Diff(books, s.LoadCatalog(ctx)); diff != "" {
		t.Errorf("catalog mismatch (-want +got):\n%s", diff)
	}
	if n := log.Count(notify.Warning); n != 0 {
		t.Errorf("unexpected warnings: %d", n)
	}
}

func TestMalformedCatalogFallsBack(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "{oops"},
		{"object instead of array", `{"id":"x"}`},
		{"number", `42`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s, mem, log := newTestStore(t)
			mem.Set(ctx, KeyCatalog, tt.raw)

			got := s.LoadCatalog(ctx)
			if got == nil || len(got) != 0 {
				t.Errorf("LoadCatalog = %v, want empty", got)
			}
			if n := log.Count(notify.Warning); n != 1 {
				t.Errorf("warnings = %d, want 1", n)
			}
		})
	}
}

func TestLegacyNumericIDs(t *testing.T) {
	ctx := context.Background()
	s, mem, _ := newTestStore(t)
	mem.Set(ctx, KeyCatalog, `[{"id":1712345678901,"title":"Old","author":"A","chapters":[]}]`)

	got := s.LoadCatalog(ctx)
	if len(got) != 1 || got[0].ID != "1712345678901" {
		t.Fatalf("LoadCatalog = %+v", got)
	}
}

func TestSettingsDefaults(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)
	if got := s.LoadSettings(ctx); got != book.DefaultSettings() {
		t.Errorf("LoadSettings on empty store = %+v", got)
	}
}

func TestSettingsShallowMerge(t *testing.T) {
	ctx := context.Background()
	s, mem, log := newTestStore(t)
	mem.Set(ctx, KeySettings, `{"fontSize":24,"extra":"ignored"}`)

	want := book.DefaultSettings()
	want.FontSize = 24
	if got := s.LoadSettings(ctx); got != want {
		t.Errorf("LoadSettings = %+v, want %+v", got, want)
	}
	if n := log.Count(notify.Warning); n != 0 {
		t.Errorf("warnings = %d, want 0", n)
	}
}

func TestSettingsMalformedField(t *testing.T) {
	ctx := context.Background()
	s, mem, log := newTestStore(t)
	mem.Set(ctx, KeySettings, `{"fontSize":"big","lineHeight":"2.5","maxWidth":5000}`)

	got := s.LoadSettings(ctx)
	want := book.DefaultSettings()
	want.LineHeight = 2.5
	want.MaxWidth = book.MaxMaxWidth
	if got != want {
		t.Errorf("LoadSettings = %+v, want %+v", got, want)
	}
	if n := log.Count(notify.Warning); n != 1 {
		t.Errorf("warnings = %d, want 1", n)
	}
}

func TestSettingsNotObject(t *testing.T) {
	ctx := context.Background()
	s, mem, log := newTestStore(t)
	mem.Set(ctx, KeySettings, `[1,2]`)

	if got := s.LoadSettings(ctx); got != book.DefaultSettings() {
		t.Errorf("LoadSettings = %+v, want defaults", got)
	}
	if n := log.Count(notify.Warning); n != 1 {
		t.Errorf("warnings = %d, want 1", n)
	}
}

// Any settings within the documented ranges survive a save and a reload.
func TestSettingsRoundTripProperty(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 200; i++ {
		mem := kv.NewMemory(0)
		want := book.ReaderSettings{
			FontSize:   float64(book.MinFontSize + rng.Intn(book.MaxFontSize-book.MinFontSize+1)),
			LineHeight: float64(8+rng.Intn(25)) / 10,
			FontFamily: book.FontFamilies[rng.Intn(len(book.FontFamilies))],
			MaxWidth:   float64(book.MinMaxWidth + 50*rng.Intn(25)),
		}

		if err := NewStateStore(mem, nil, nil).SaveSettings(ctx, want); err != nil {
			t.Fatalf("SaveSettings: %v", err)
		}
		// A fresh adapter over the same storage simulates a reload.
		if got := NewStateStore(mem, nil, nil).LoadSettings(ctx); got != want {
			t.Fatalf("round trip %d: got %+v, want %+v", i, got, want)
		}
	}
}

func TestTheme(t *testing.T) {
	ctx := context.Background()
	s, mem, log := newTestStore(t)

	if s.LoadTheme(ctx) {
		t.Error("default theme should be light")
	}
	s.SaveTheme(ctx, true)
	if !s.LoadTheme(ctx) {
		t.Error("LoadTheme after SaveTheme(true) = false")
	}

	mem.Set(ctx, KeyTheme, `"dark"`)
	if s.LoadTheme(ctx) {
		t.Error("malformed theme should fall back to light")
	}
	if n := log.Count(notify.Warning); n != 1 {
		t.Errorf("warnings = %d, want 1", n)
	}
}

func TestViewMode(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)
	if got := s.LoadViewMode(ctx, "grid"); got != "grid" {
		t.Errorf("default view mode = %q", got)
	}
	s.SaveViewMode(ctx, "list")
	if got := s.LoadViewMode(ctx, "grid"); got != "list" {
		t.Errorf("LoadViewMode = %q, want list", got)
	}
}

func TestBookmarksAppendOnly(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)
	now := time.Unix(1700000000, 0)

	a := book.NewBookmark(book.Chapter{ID: 1, Title: "One"}, 0, 10, now)
	b := book.NewBookmark(book.Chapter{ID: 1, Title: "One"}, 0, 10, now)
	if err := s.AppendBookmark(ctx, "b1", a); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendBookmark(ctx, "b1", b); err != nil {
		t.Fatal(err)
	}

	got := s.Bookmarks(ctx, "b1")
	if diff := cmp.Diff([]book.Bookmark{a, b}, got); diff != "" {
		t.Errorf("bookmarks mismatch (-want +got):\n%s", diff)
	}
	if other := s.Bookmarks(ctx, "b2"); len(other) != 0 {
		t.Errorf("bookmarks leaked across books: %v", other)
	}
}

func TestWriteFailureReported(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory(8)
	log := notify.NewLog(16, nil)
	s := NewStateStore(mem, log, nil)

	bm := book.NewBookmark(book.Chapter{ID: 1, Title: "A long chapter title"}, 0, 0, time.Now())
	err := s.AppendBookmark(ctx, "b1", bm)
	if !errors.Is(err, kv.ErrQuotaExceeded) {
		t.Fatalf("AppendBookmark err = %v, want ErrQuotaExceeded", err)
	}
	if n := log.Count(notify.Error); n != 1 {
		t.Errorf("error notices = %d, want 1", n)
	}
	if got := s.Bookmarks(ctx, "b1"); len(got) != 0 {
		t.Errorf("failed append left %d bookmarks", len(got))
	}
}

func TestProgressClamped(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)

	tests := []struct{ in, want int }{{-5, 0}, {0, 0}, {42, 42}, {100, 100}, {250, 100}}
	for _, tt := range tests {
		if err := s.SetProgress(ctx, "b1", 2, tt.in); err != nil {
			t.Fatal(err)
		}
		if got := s.Progress(ctx, "b1", 2); got != tt.want {
			t.Errorf("SetProgress(%d) then Progress = %d, want %d", tt.in, got, tt.want)
		}
	}
	if got := s.Progress(ctx, "b1", 3); got != 0 {
		t.Errorf("unknown chapter progress = %d", got)
	}
}

func TestForget(t *testing.T) {
	ctx := context.Background()
	s, mem, _ := newTestStore(t)
	s.SetProgress(ctx, "b1", 0, 50)
	s.SetProgress(ctx, "b1", 1, 60)
	s.AppendBookmark(ctx, "b1", book.Bookmark{ID: 1})

	if err := s.Forget(ctx, "b1", 2); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{BookmarksKey("b1"), ProgressKey("b1", 0), ProgressKey("b1", 1)} {
		if _, ok, _ := mem.Get(ctx, key); ok {
			t.Errorf("%s still present", key)
		}
	}
}
