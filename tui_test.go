//go:build !gui

package main

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/metcalfc/shelf/internal/app"
	"github.com/metcalfc/shelf/internal/book"
	"github.com/metcalfc/shelf/internal/library"
	"github.com/metcalfc/shelf/internal/notify"
)

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }
func key(k tea.KeyType) tea.KeyMsg { return tea.KeyMsg{Type: k} }

func newTestModel(t *testing.T) model {
	t.Helper()
	ctx := context.Background()
	notes := notify.NewLog(10, nil)
	a := app.New(app.Options{Notifier: notes})
	_, err := a.CreateBook(ctx, app.Form{
		Title:    "Lanterns",
		Author:   "Wen",
		Password: "pw",
		Chapters: []app.ChapterInput{
			{Title: "Dusk", Content: "<p>" + strings.Repeat("The first lamp. ", 200) + "</p>"},
			{Title: "Night", Content: "<p>The second lamp.</p>"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	notes.Drain()

	m := newModel(ctx, a, notes)
	return press(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
}

func press(t *testing.T, m model, msgs ...tea.Msg) model {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(model)
	}
	return m
}

func TestOpenAndNavigate(t *testing.T) {
	m := newTestModel(t)

	m = press(t, m, key(tea.KeyEnter))
	if m.screen != screenReader || m.app.View() != app.ViewReader {
		t.Fatalf("enter should open the reader, screen = %v", m.screen)
	}
	if !strings.Contains(m.View(), "Dusk") {
		t.Error("reader view should show the chapter title")
	}

	m = press(t, m, key(tea.KeyRight))
	if rv, _ := m.app.Reader(); rv.Index != 1 {
		t.Errorf("right: chapter index = %d, want 1", rv.Index)
	}
	m = press(t, m, key(tea.KeyRight))
	if rv, _ := m.app.Reader(); rv.Index != 1 {
		t.Errorf("right at the last chapter moved to %d", rv.Index)
	}
	m = press(t, m, runes("p"))
	if rv, _ := m.app.Reader(); rv.Index != 0 {
		t.Errorf("p: chapter index = %d, want 0", rv.Index)
	}

	m = press(t, m, key(tea.KeyEsc))
	if m.screen != screenLibrary || m.app.View() != app.ViewLibrary {
		t.Errorf("esc should return to the library")
	}
}

func TestScrollRecordsProgress(t *testing.T) {
	m := newTestModel(t)
	m = press(t, m, key(tea.KeyEnter), key(tea.KeyPgDown))

	rv, _ := m.app.Reader()
	if rv.Progress <= 0 {
		t.Errorf("progress after paging down = %d", rv.Progress)
	}

	m = press(t, m, key(tea.KeyRight), key(tea.KeyLeft))
	if got := m.app.SavedProgress(m.ctx); got != rv.Progress {
		t.Errorf("saved progress = %d, want %d", got, rv.Progress)
	}
}

func TestBookmarkKey(t *testing.T) {
	m := newTestModel(t)
	m = press(t, m, key(tea.KeyEnter), runes("m"))

	if got := len(m.app.Bookmarks(m.ctx)); got != 1 {
		t.Fatalf("bookmarks = %d, want 1", got)
	}
	if !strings.Contains(m.statusLine(), "Bookmark added") {
		t.Errorf("status line = %q", m.statusLine())
	}

	m = press(t, m, runes("b"))
	if m.screen != screenBookmarks || !strings.Contains(m.View(), "Dusk") {
		t.Errorf("b should list bookmarks")
	}
	m = press(t, m, key(tea.KeyEnter))
	if m.screen != screenReader {
		t.Errorf("enter on a bookmark should return to the reader")
	}
}

func TestChapterList(t *testing.T) {
	m := newTestModel(t)
	m = press(t, m, key(tea.KeyEnter), runes("c"))
	if m.screen != screenTOC || len(m.toc) != 2 {
		t.Fatalf("c should open the chapter list, screen = %v, entries = %d", m.screen, len(m.toc))
	}

	m = press(t, m, key(tea.KeyDown), key(tea.KeyEnter))
	if rv, _ := m.app.Reader(); rv.Index != 1 || m.screen != screenReader {
		t.Errorf("jump landed on chapter %d, screen %v", rv.Index, m.screen)
	}
}

func TestLibraryKeys(t *testing.T) {
	m := newTestModel(t)

	m = press(t, m, runes("v"))
	if m.app.Library().Mode != library.List {
		t.Error("v should switch to the list layout")
	}
	m = press(t, m, runes("t"))
	if !m.app.Dark() {
		t.Error("t should switch to the dark theme")
	}

	m = press(t, m, runes("/"), runes("zz"))
	if m.app.Library().Empty != library.NoMatches {
		t.Error("typing in the search box should filter")
	}
	if !strings.Contains(m.View(), "No books match") {
		t.Error("empty search result should be explained")
	}
	m = press(t, m, key(tea.KeyEsc), runes("q"))
	if !m.quitting {
		t.Error("q should quit once the search box is blurred")
	}
}

func TestSettingsScreen(t *testing.T) {
	m := newTestModel(t)
	m = press(t, m, runes("s"), key(tea.KeyRight))
	if got := m.app.Settings().FontSize; got != 19 {
		t.Errorf("font size = %v, want 19", got)
	}

	m = press(t, m, key(tea.KeyDown), key(tea.KeyDown), key(tea.KeyRight))
	if got := m.app.Settings().FontFamily; got != book.FontFamilies[1] {
		t.Errorf("font family = %q, want %q", got, book.FontFamilies[1])
	}

	m = press(t, m, key(tea.KeyEsc))
	if m.screen != screenLibrary {
		t.Errorf("esc should go back to the library")
	}
}

func TestTextColumns(t *testing.T) {
	tests := []struct {
		name     string
		maxWidth float64
		width    int
		want     int
	}{
		{"default fits", 800, 120, 80},
		{"bounded by terminal", 1800, 100, 96},
		{"floor", 600, 10, 20},
		{"unknown width", 600, 0, 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := textColumns(tt.maxWidth, tt.width); got != tt.want {
				t.Errorf("textColumns(%v, %d) = %d, want %d", tt.maxWidth, tt.width, got, tt.want)
			}
		})
	}
}

func TestRenderChapterLineHeight(t *testing.T) {
	ch := book.Chapter{Content: "<p>" + strings.Repeat("word ", 60) + "</p>"}
	st := book.DefaultSettings()

	single := renderChapter(ch, st, 80)
	st.LineHeight = 2.4
	double := renderChapter(ch, st, 80)

	if strings.Count(double, "\n") <= strings.Count(single, "\n") {
		t.Error("a tall line height should add blank lines")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"too long here", 5, "too …"},
		{"影夜之書", 3, "影夜…"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestClampIndex(t *testing.T) {
	tests := []struct{ i, n, want int }{
		{0, 0, 0},
		{-1, 3, 0},
		{5, 3, 2},
		{1, 3, 1},
	}
	for _, tt := range tests {
		if got := clampIndex(tt.i, tt.n); got != tt.want {
			t.Errorf("clampIndex(%d, %d) = %d, want %d", tt.i, tt.n, got, tt.want)
		}
	}
}
