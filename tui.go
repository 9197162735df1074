//go:build !gui

package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/metcalfc/shelf/internal/app"
	"github.com/metcalfc/shelf/internal/book"
	"github.com/metcalfc/shelf/internal/library"
	"github.com/metcalfc/shelf/internal/notify"
	"github.com/metcalfc/shelf/internal/reader"
)

const frontEnd = "terminal"

const (
	cardWidth     = 26
	noticeTimeout = 3 * time.Second
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF8800"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Padding(0, 1)

	controlsStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			Italic(true)

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFAA00"))

	chipStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("#AAAAAA"))

	activeChipStyle = chipStyle.
			Foreground(lipgloss.Color("#000000")).
			Background(lipgloss.Color("#FFAA00"))

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Width(cardWidth-2).
			Padding(0, 1)

	selectedCardStyle = cardStyle.
				BorderForeground(lipgloss.Color("#FFAA00"))

	noticeStyles = map[notify.Level]lipgloss.Style{
		notify.Info:    lipgloss.NewStyle().Foreground(lipgloss.Color("#00CC66")),
		notify.Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAA00")).Bold(true),
		notify.Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FF3333")).Bold(true),
	}
)

// screen is what the terminal currently shows.
type screen int

const (
	screenLibrary screen = iota
	screenReader
	screenTOC
	screenBookmarks
	screenSettings
)

type settingRow struct {
	key   string
	label string
}

var settingRows = []settingRow{
	{app.SettingFontSize, "Font size"},
	{app.SettingLineHeight, "Line height"},
	{app.SettingFontFamily, "Font family"},
	{app.SettingMaxWidth, "Max width"},
}

type model struct {
	ctx     context.Context
	app     *app.App
	notices *notify.Log

	screen   screen
	back     screen
	search   textinput.Model
	viewport viewport.Model
	cursor   int
	chip     int
	row      int
	marks    []book.Bookmark
	toc      []reader.TOCEntry

	notice    notify.Notice
	hasNotice bool
	noticeSeq int

	quitting bool
	width    int
	height   int
}

type clearNoticeMsg int

// pollMsg asks the model to pick up notices raised outside a key press.
type pollMsg struct{}

func newModel(ctx context.Context, a *app.App, notices *notify.Log) model {
	ti := textinput.New()
	ti.Placeholder = "search title or author"
	ti.Prompt = "/ "
	ti.CharLimit = 80

	return model{
		ctx:      ctx,
		app:      a,
		notices:  notices,
		search:   ti,
		viewport: viewport.New(80, 20),
		width:    80,
		height:   24,
	}
}

func runInteractive(ctx context.Context, s *session) error {
	p := tea.NewProgram(newModel(ctx, s.app, s.notices), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !(errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil) {
		return err
	}
	return nil
}

func (m model) Init() tea.Cmd {
	return func() tea.Msg { return pollMsg{} }
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(1, msg.Height-4)
		if m.screen == screenReader {
			m.loadChapter(false)
		}
		return m, nil

	case pollMsg:
		poll := m.pollNotices()
		return m, poll

	case clearNoticeMsg:
		if int(msg) == m.noticeSeq {
			m.hasNotice = false
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
		var cmd tea.Cmd
		switch m.screen {
		case screenLibrary:
			m, cmd = m.updateLibrary(msg)
		case screenReader:
			m, cmd = m.updateReader(msg)
		case screenTOC:
			m = m.updateTOC(msg)
		case screenBookmarks:
			m = m.updateBookmarks(msg)
		case screenSettings:
			m = m.updateSettings(msg)
		}
		poll := m.pollNotices()
		return m, tea.Batch(cmd, poll)
	}
	return m, nil
}

func (m model) updateLibrary(msg tea.KeyMsg) (model, tea.Cmd) {
	if m.search.Focused() {
		switch msg.String() {
		case "esc", "enter":
			m.search.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.search, cmd = m.search.Update(msg)
		m.app.SetSearch(m.search.Value())
		m.cursor = 0
		return m, cmd
	}

	page := m.app.Library()
	switch msg.String() {
	case "q", "Q":
		m.quitting = true
		return m, tea.Quit
	case "/":
		return m, m.search.Focus()
	case "tab":
		m.chip = (m.chip + 1) % len(page.Categories)
		m.app.SetCategory(page.Categories[m.chip])
		m.cursor = 0
	case "shift+tab":
		m.chip = (m.chip - 1 + len(page.Categories)) % len(page.Categories)
		m.app.SetCategory(page.Categories[m.chip])
		m.cursor = 0
	case "up", "k":
		m.cursor -= m.step(page.Mode)
	case "down", "j":
		m.cursor += m.step(page.Mode)
	case "left", "h":
		m.cursor--
	case "right", "l":
		m.cursor++
	case "v":
		m.app.ToggleViewMode(m.ctx)
	case "t":
		m.app.ToggleTheme(m.ctx)
	case "s":
		m.back = screenLibrary
		m.screen = screenSettings
		m.row = 0
	case "enter":
		if len(page.Books) == 0 {
			return m, nil
		}
		if err := m.app.OpenBook(m.ctx, page.Books[m.cursor].ID, 0); err == nil {
			m.screen = screenReader
			m.loadChapter(true)
		}
	}
	m.cursor = clampIndex(m.cursor, len(page.Books))
	return m, nil
}

// step is how far up or down moves the cursor: one row of cards in the
// grid, one line in the list.
func (m model) step(mode library.Mode) int {
	if mode == library.List {
		return 1
	}
	return m.columns()
}

func (m model) columns() int {
	return max(1, m.width/cardWidth)
}

func (m model) updateReader(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		m.app.CloseReader()
		m.screen = screenLibrary
		return m, nil
	case "right", "n":
		if m.app.NextChapter() {
			m.loadChapter(true)
		}
		return m, nil
	case "left", "p":
		if m.app.PreviousChapter() {
			m.loadChapter(true)
		}
		return m, nil
	case "m":
		_, _ = m.app.AddBookmark(m.ctx)
		return m, nil
	case "c":
		m.toc = m.app.TOC()
		m.row = 0
		for i, e := range m.toc {
			if e.Current {
				m.row = i
			}
		}
		m.screen = screenTOC
		return m, nil
	case "b":
		m.marks = m.app.Bookmarks(m.ctx)
		m.row = 0
		m.screen = screenBookmarks
		return m, nil
	case "s":
		m.back = screenReader
		m.row = 0
		m.screen = screenSettings
		return m, nil
	case "t":
		m.app.ToggleTheme(m.ctx)
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	m.observe()
	return m, cmd
}

func (m model) updateTOC(msg tea.KeyMsg) model {
	switch msg.String() {
	case "esc", "c", "q":
		m.screen = screenReader
	case "up", "k":
		m.row = clampIndex(m.row-1, len(m.toc))
	case "down", "j":
		m.row = clampIndex(m.row+1, len(m.toc))
	case "enter":
		if len(m.toc) == 0 {
			break
		}
		m = m.goTo(m.toc[m.row].Index, -1)
	}
	return m
}

func (m model) updateBookmarks(msg tea.KeyMsg) model {
	switch msg.String() {
	case "esc", "b", "q":
		m.screen = screenReader
	case "up", "k":
		m.row = clampIndex(m.row-1, len(m.marks))
	case "down", "j":
		m.row = clampIndex(m.row+1, len(m.marks))
	case "enter":
		if len(m.marks) == 0 {
			break
		}
		bm := m.marks[m.row]
		m = m.goTo(bm.ChapterIndex, bm.Progress)
	}
	return m
}

// goTo jumps to a chapter and scrolls to progress, or to the saved progress
// when progress is negative. A failed jump lands in the library.
func (m model) goTo(index, progress int) model {
	if err := m.app.GoToChapter(index); err != nil {
		m.screen = screenLibrary
		return m
	}
	m.screen = screenReader
	if progress < 0 {
		m.loadChapter(true)
		return m
	}
	m.loadChapter(false)
	m.scrollTo(progress)
	m.observe()
	return m
}

func (m model) updateSettings(msg tea.KeyMsg) model {
	switch msg.String() {
	case "esc", "s", "q":
		m.screen = m.back
		if m.back == screenReader {
			m.loadChapter(false)
		}
	case "up", "k":
		m.row = clampIndex(m.row-1, len(settingRows))
	case "down", "j":
		m.row = clampIndex(m.row+1, len(settingRows))
	case "left", "h", "-":
		m.adjust(-1)
	case "right", "l", "+", "=":
		m.adjust(1)
	}
	return m
}

// adjust moves the selected setting one step in dir.
func (m model) adjust(dir int) {
	st := m.app.Settings()
	key := settingRows[m.row].key
	var value string
	switch key {
	case app.SettingFontSize:
		value = strconv.FormatFloat(st.FontSize+float64(dir), 'f', -1, 64)
	case app.SettingLineHeight:
		value = strconv.FormatFloat(st.LineHeight+0.1*float64(dir), 'f', 1, 64)
	case app.SettingMaxWidth:
		value = strconv.FormatFloat(st.MaxWidth+50*float64(dir), 'f', -1, 64)
	case app.SettingFontFamily:
		i := 0
		for j, f := range book.FontFamilies {
			if f == st.FontFamily {
				i = j
			}
		}
		n := len(book.FontFamilies)
		value = book.FontFamilies[(i+dir+n)%n]
	}
	_, _ = m.app.UpdateSetting(m.ctx, key, value)
}

// loadChapter renders the current chapter into the viewport. With restore
// it scrolls to the saved progress of that chapter.
func (m *model) loadChapter(restore bool) {
	rv, ok := m.app.Reader()
	if !ok {
		m.screen = screenLibrary
		return
	}
	offset := m.viewport.YOffset
	m.viewport.SetContent(renderChapter(rv.Chapter, m.app.Settings(), m.width))
	if restore {
		m.viewport.GotoTop()
		m.scrollTo(m.app.SavedProgress(m.ctx))
		m.observe()
		return
	}
	m.viewport.SetYOffset(offset)
}

func (m *model) scrollTo(progress int) {
	scrollable := m.viewport.TotalLineCount() - m.viewport.Height
	if scrollable <= 0 {
		return
	}
	m.viewport.SetYOffset(scrollable * book.ClampProgress(progress) / 100)
}

// observe reports the scroll position as reading progress.
func (m model) observe() {
	p := int(m.viewport.ScrollPercent()*100 + 0.5)
	_, _ = m.app.ObserveProgress(m.ctx, p)
}

// pollNotices moves new notices into the status line and schedules their
// removal.
func (m *model) pollNotices() tea.Cmd {
	if m.notices == nil {
		return nil
	}
	pending := m.notices.Drain()
	if len(pending) == 0 {
		return nil
	}
	m.notice = pending[len(pending)-1]
	m.hasNotice = true
	m.noticeSeq++
	seq := m.noticeSeq
	return tea.Tick(noticeTimeout, func(time.Time) tea.Msg { return clearNoticeMsg(seq) })
}

func (m model) View() string {
	if m.quitting {
		return ""
	}
	var body, controls string
	switch m.screen {
	case screenLibrary:
		body = m.libraryView()
		controls = "↑↓←→ move  enter read  / search  tab category  v layout  t theme  s settings  q quit"
	case screenReader:
		body = m.readerView()
		controls = "↑↓ scroll  ←/→ chapter  m bookmark  b bookmarks  c chapters  s settings  t theme  esc library"
	case screenTOC:
		body = m.tocView()
		controls = "↑↓ move  enter jump  esc back"
	case screenBookmarks:
		body = m.bookmarksView()
		controls = "↑↓ move  enter jump  esc back"
	case screenSettings:
		body = m.settingsView()
		controls = "↑↓ select  ←/→ change  esc back"
	}

	var sb strings.Builder
	sb.WriteString(body)
	used := lipgloss.Height(body) + 2
	for i := used; i < m.height; i++ {
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(m.statusLine())
	sb.WriteString("\n")
	sb.WriteString(controlsStyle.Render(controls))
	return m.themed(sb.String())
}

// themed paints the whole frame for the light theme. The dark theme uses
// the terminal's own colours.
func (m model) themed(s string) string {
	if m.app.Dark() {
		return s
	}
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("#222222")).
		Background(lipgloss.Color("#F5F1E8")).
		Width(m.width).
		Render(s)
}

func (m model) statusLine() string {
	if m.hasNotice {
		return noticeStyles[m.notice.Level].Render(m.notice.Message)
	}
	switch m.screen {
	case screenLibrary:
		page := m.app.Library()
		return statusStyle.Render(fmt.Sprintf("%d books | %s view | %s", len(page.Books), page.Mode, themeName(m.app.Dark())))
	default:
		rv, ok := m.app.Reader()
		if !ok {
			return ""
		}
		return statusStyle.Render(fmt.Sprintf("%s | Chapter %d/%d | %d%%", rv.Book.Title, rv.Index+1, rv.Total, rv.Progress))
	}
}

func (m model) libraryView() string {
	page := m.app.Library()

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Shelf"))
	sb.WriteString("  ")
	sb.WriteString(m.search.View())
	sb.WriteString("\n")

	chips := make([]string, len(page.Categories))
	for i, c := range page.Categories {
		if c == page.Selected {
			chips[i] = activeChipStyle.Render(c)
		} else {
			chips[i] = chipStyle.Render(c)
		}
	}
	sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, chips...))
	sb.WriteString("\n\n")

	switch page.Empty {
	case library.NoBooks:
		sb.WriteString(statusStyle.Render("No books yet. Add one with: shelf add FILE"))
		return sb.String()
	case library.NoMatches:
		sb.WriteString(statusStyle.Render("No books match your search."))
		return sb.String()
	}

	if page.Mode == library.List {
		for i, b := range page.Books {
			line := fmt.Sprintf("%s  %s  [%s]  %d chapters", b.Title, b.Author, b.Category, len(b.Chapters))
			if i == m.cursor {
				line = selectedStyle.Render("> " + line)
			} else {
				line = "  " + line
			}
			sb.WriteString(line)
			sb.WriteString("\n")
		}
		return sb.String()
	}

	cols := m.columns()
	for start := 0; start < len(page.Books); start += cols {
		end := min(start+cols, len(page.Books))
		cards := make([]string, 0, cols)
		for i := start; i < end; i++ {
			cards = append(cards, card(page.Books[i], i == m.cursor))
		}
		sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cards...))
		sb.WriteString("\n")
	}
	return sb.String()
}

// card draws one grid cell. Books without a cover get a coloured band
// derived from the title.
func card(b book.Book, selected bool) string {
	from, to := library.Cover(b.Title)
	band := lipgloss.NewStyle().Background(lipgloss.Color(from)).Render(strings.Repeat(" ", (cardWidth-4)/2)) +
		lipgloss.NewStyle().Background(lipgloss.Color(to)).Render(strings.Repeat(" ", (cardWidth-4)-(cardWidth-4)/2))
	lines := []string{
		band,
		lipgloss.NewStyle().Bold(true).Render(truncate(b.Title, cardWidth-4)),
		truncate(b.Author, cardWidth-4),
		statusStyle.UnsetPadding().Render(truncate(b.Category, cardWidth-4)),
	}
	style := cardStyle
	if selected {
		style = selectedCardStyle
	}
	return style.Render(strings.Join(lines, "\n"))
}

func (m model) readerView() string {
	rv, ok := m.app.Reader()
	if !ok {
		return ""
	}
	header := titleStyle.Render(rv.Chapter.Title) + "  " +
		statusStyle.Render(fmt.Sprintf("%s · %s", rv.Book.Title, rv.Book.Author))
	return header + "\n\n" + m.viewport.View()
}

func (m model) tocView() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Chapters"))
	sb.WriteString("\n\n")
	for i, e := range m.toc {
		line := fmt.Sprintf("%3d. %s", e.Index+1, e.Title)
		if e.Current {
			line += " *"
		}
		if i == m.row {
			sb.WriteString(selectedStyle.Render("> " + line))
			sb.WriteString("\n     " + statusStyle.Render(e.Preview))
		} else {
			sb.WriteString("  " + line)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m model) bookmarksView() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Bookmarks"))
	sb.WriteString("\n\n")
	if len(m.marks) == 0 {
		sb.WriteString(statusStyle.Render("No bookmarks yet. Press m while reading."))
		return sb.String()
	}
	for i, bm := range m.marks {
		line := fmt.Sprintf("%s  %s  %d%%", bookmarkTime(bm), bm.ChapterTitle, bm.Progress)
		if i == m.row {
			sb.WriteString(selectedStyle.Render("> " + line))
		} else {
			sb.WriteString("  " + line)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m model) settingsView() string {
	st := m.app.Settings()
	values := map[string]string{
		app.SettingFontSize:   fmt.Sprintf("%g", st.FontSize),
		app.SettingLineHeight: fmt.Sprintf("%.1f", st.LineHeight),
		app.SettingFontFamily: st.FontFamily,
		app.SettingMaxWidth:   fmt.Sprintf("%g (%d columns)", st.MaxWidth, textColumns(st.MaxWidth, m.width)),
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Reader settings"))
	sb.WriteString("\n\n")
	for i, r := range settingRows {
		line := fmt.Sprintf("%-12s %s", r.label, values[r.key])
		if i == m.row {
			sb.WriteString(selectedStyle.Render("> " + line))
		} else {
			sb.WriteString("  " + line)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(statusStyle.Render("Theme: " + themeName(m.app.Dark())))
	return sb.String()
}

// renderChapter lays out a chapter body as wrapped plain text. Max width
// becomes a column count and line heights of 2 or more double-space the
// text; font size and family are left to the terminal.
func renderChapter(ch book.Chapter, st book.ReaderSettings, width int) string {
	cols := textColumns(st.MaxWidth, width)
	text := lipgloss.NewStyle().Width(cols).Render(reader.PlainText(ch.Content))
	if st.LineHeight >= 2 {
		text = strings.ReplaceAll(text, "\n", "\n\n")
	}
	pad := max(0, (width-cols)/2)
	return lipgloss.NewStyle().PaddingLeft(pad).Render(text)
}

// textColumns converts a pixel max width to terminal columns at about ten
// pixels per cell, bounded by the terminal.
func textColumns(maxWidth float64, width int) int {
	cols := int(maxWidth / 10)
	if width > 4 {
		cols = min(cols, width-4)
	}
	return max(20, cols)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func clampIndex(i, n int) int {
	if n == 0 || i < 0 {
		return 0
	}
	return min(i, n-1)
}
