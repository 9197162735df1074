//go:build gui

package main

import (
	"context"
	"fmt"
	"image/color"
	"strconv"

	"fyne.io/fyne/v2"
	fyneapp "fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/metcalfc/shelf/internal/app"
	"github.com/metcalfc/shelf/internal/book"
	"github.com/metcalfc/shelf/internal/library"
	"github.com/metcalfc/shelf/internal/notify"
	"github.com/metcalfc/shelf/internal/reader"
)

const frontEnd = "desktop"

// readerTheme applies the reader settings and the light/dark choice on top
// of the default theme.
type readerTheme struct {
	fyne.Theme
	dark     bool
	settings book.ReaderSettings
}

func (t *readerTheme) Color(n fyne.ThemeColorName, _ fyne.ThemeVariant) color.Color {
	v := theme.VariantLight
	if t.dark {
		v = theme.VariantDark
	}
	return t.Theme.Color(n, v)
}

func (t *readerTheme) Size(n fyne.ThemeSizeName) float32 {
	switch n {
	case theme.SizeNameText:
		return float32(t.settings.FontSize)
	case theme.SizeNameLineSpacing:
		return float32((t.settings.LineHeight - 1) * t.settings.FontSize / 2)
	}
	return t.Theme.Size(n)
}

// maxWidthLayout centres its objects horizontally at no more than width.
type maxWidthLayout struct {
	width float32
}

func (l *maxWidthLayout) MinSize(objects []fyne.CanvasObject) fyne.Size {
	var s fyne.Size
	for _, o := range objects {
		s = s.Max(o.MinSize())
	}
	return s
}

func (l *maxWidthLayout) Layout(objects []fyne.CanvasObject, size fyne.Size) {
	w := size.Width
	if l.width > 0 && l.width < w {
		w = l.width
	}
	for _, o := range objects {
		o.Resize(fyne.NewSize(w, size.Height))
		o.Move(fyne.NewPos((size.Width-w)/2, 0))
	}
}

type gui struct {
	ctx     context.Context
	app     *app.App
	notices *notify.Log
	fyne    fyne.App
	win     fyne.Window
	theme   *readerTheme

	status   *widget.Label
	search   *widget.Entry
	category *widget.Select
	shelf    *fyne.Container
	screens  *fyne.Container
	library  fyne.CanvasObject

	reading   fyne.CanvasObject
	heading   *widget.Label
	body      *widget.Label
	position  *widget.Label
	scroll    *container.Scroll
	column    *maxWidthLayout
	tocList   *widget.List
	toc       []reader.TOCEntry
	prevBtn   *widget.Button
	nextBtn   *widget.Button
	restoring bool
}

func runInteractive(ctx context.Context, s *session) error {
	g := newGUI(ctx, fyneapp.NewWithID("io.github.metcalfc.shelf"), s)
	g.win.ShowAndRun()
	return nil
}

func newGUI(ctx context.Context, fa fyne.App, s *session) *gui {
	g := &gui{
		ctx:     ctx,
		app:     s.app,
		notices: s.notices,
		fyne:    fa,
		win:     fa.NewWindow("Shelf"),
		theme:   &readerTheme{Theme: theme.DefaultTheme()},
	}
	g.applyTheme()

	g.status = widget.NewLabel("")
	g.library = g.buildLibrary()
	g.reading = g.buildReader()
	g.screens = container.NewStack(g.library)

	g.win.SetContent(container.NewBorder(nil, g.status, nil, nil, g.screens))
	g.win.Resize(fyne.NewSize(1100, 760))
	g.win.Canvas().SetOnTypedKey(g.typedKey)
	g.refreshLibrary()
	return g
}

func (g *gui) buildLibrary() fyne.CanvasObject {
	g.search = widget.NewEntry()
	g.search.SetPlaceHolder("Search title or author")
	g.search.OnChanged = func(s string) {
		g.app.SetSearch(s)
		g.refreshLibrary()
	}

	g.category = widget.NewSelect(nil, func(c string) {
		g.app.SetCategory(c)
		g.refreshLibrary()
	})

	toolbar := container.NewHBox(
		widget.NewButtonWithIcon("New book", theme.ContentAddIcon(), func() { g.showForm(nil, "") }),
		widget.NewButtonWithIcon("Layout", theme.ViewRestoreIcon(), func() {
			g.app.ToggleViewMode(g.ctx)
			g.refreshLibrary()
		}),
		widget.NewButtonWithIcon("Theme", theme.ColorPaletteIcon(), g.toggleTheme),
		widget.NewButtonWithIcon("Settings", theme.SettingsIcon(), g.showSettings),
	)

	g.shelf = container.NewStack()
	top := container.NewBorder(nil, nil, nil, toolbar, container.NewBorder(nil, nil, nil, g.category, g.search))
	return container.NewBorder(top, nil, nil, nil, g.shelf)
}

// refreshLibrary redraws the shelf from the current projection.
func (g *gui) refreshLibrary() {
	page := g.app.Library()
	g.category.Options = page.Categories
	g.category.Selected = page.Selected
	g.category.Refresh()

	var content fyne.CanvasObject
	switch page.Empty {
	case library.NoBooks:
		content = container.NewCenter(widget.NewLabel("No books yet. Create one with New book."))
	case library.NoMatches:
		content = container.NewCenter(widget.NewLabel("No books match your search."))
	default:
		if page.Mode == library.List {
			content = g.bookList(page.Books)
		} else {
			cards := make([]fyne.CanvasObject, len(page.Books))
			for i, b := range page.Books {
				cards[i] = g.bookCard(b)
			}
			content = container.NewVScroll(container.NewGridWrap(fyne.NewSize(200, 300), cards...))
		}
	}
	g.shelf.Objects = []fyne.CanvasObject{content}
	g.shelf.Refresh()
	g.showNotices()
}

func (g *gui) bookCard(b book.Book) fyne.CanvasObject {
	from, to := library.Cover(b.Title)
	cover := canvas.NewVerticalGradient(hexColor(from), hexColor(to))
	cover.SetMinSize(fyne.NewSize(180, 140))
	title := canvas.NewText(b.Title, color.White)
	title.TextStyle.Bold = true
	title.Alignment = fyne.TextAlignCenter

	return widget.NewCard("", b.Author,
		container.NewVBox(
			container.NewStack(cover, container.NewCenter(title)),
			widget.NewLabel(b.Category),
			g.bookActions(b),
		))
}

func (g *gui) bookList(books []book.Book) fyne.CanvasObject {
	list := widget.NewList(
		func() int { return len(books) },
		func() fyne.CanvasObject {
			return widget.NewLabel("Title")
		},
		func(id widget.ListItemID, obj fyne.CanvasObject) {
			b := books[id]
			obj.(*widget.Label).SetText(fmt.Sprintf("%s  ·  %s  ·  %s  ·  %d chapters", b.Title, b.Author, b.Category, len(b.Chapters)))
		},
	)
	list.OnSelected = func(id widget.ListItemID) {
		list.UnselectAll()
		g.open(books[id].ID, 0)
	}
	return list
}

func (g *gui) bookActions(b book.Book) fyne.CanvasObject {
	read := widget.NewButtonWithIcon("Read", theme.MediaPlayIcon(), func() { g.open(b.ID, 0) })
	edit := widget.NewButtonWithIcon("", theme.DocumentCreateIcon(), func() { g.askPassword(b) })
	del := widget.NewButtonWithIcon("", theme.DeleteIcon(), func() {
		dialog.ShowConfirm("Delete book", "Delete this book? This cannot be undone.", func(ok bool) {
			if ok {
				_ = g.app.DeleteBook(g.ctx, b.ID)
				g.refreshLibrary()
			}
		}, g.win)
	})
	if b.BuiltIn {
		edit.Disable()
		del.Disable()
	}
	return container.NewHBox(read, edit, del)
}

func (g *gui) buildReader() fyne.CanvasObject {
	g.heading = widget.NewLabel("")
	g.heading.TextStyle.Bold = true
	g.heading.Alignment = fyne.TextAlignCenter
	g.body = widget.NewLabel("")
	g.body.Wrapping = fyne.TextWrapWord
	g.position = widget.NewLabel("")

	g.column = &maxWidthLayout{}
	g.scroll = container.NewVScroll(container.New(g.column, container.NewVBox(g.heading, g.body)))
	g.scroll.OnScrolled = func(fyne.Position) {
		if !g.restoring {
			_, _ = g.app.ObserveProgress(g.ctx, g.scrollPercent())
			g.updatePosition()
		}
	}

	g.tocList = widget.NewList(
		func() int { return len(g.toc) },
		func() fyne.CanvasObject {
			return container.NewVBox(widget.NewLabel("Title"), widget.NewLabel("Preview"))
		},
		func(id widget.ListItemID, obj fyne.CanvasObject) {
			vbox := obj.(*fyne.Container)
			title := vbox.Objects[0].(*widget.Label)
			preview := vbox.Objects[1].(*widget.Label)
			e := g.toc[id]
			title.SetText(fmt.Sprintf("%d. %s", e.Index+1, e.Title))
			title.TextStyle.Bold = e.Current
			preview.SetText(e.Preview)
		},
	)
	g.tocList.OnSelected = func(id widget.ListItemID) {
		if id < len(g.toc) && !g.toc[id].Current {
			g.goTo(g.toc[id].Index, -1)
		}
	}

	g.prevBtn = widget.NewButtonWithIcon("Previous", theme.NavigateBackIcon(), func() {
		if g.app.PreviousChapter() {
			g.showChapter(-1)
		}
	})
	g.nextBtn = widget.NewButtonWithIcon("Next", theme.NavigateNextIcon(), func() {
		if g.app.NextChapter() {
			g.showChapter(-1)
		}
	})
	bar := container.NewHBox(
		widget.NewButtonWithIcon("Library", theme.HomeIcon(), g.closeReader),
		widget.NewButtonWithIcon("Bookmark", theme.ContentAddIcon(), func() {
			_, _ = g.app.AddBookmark(g.ctx)
			g.showNotices()
		}),
		widget.NewButtonWithIcon("Bookmarks", theme.ListIcon(), g.showBookmarks),
		widget.NewButtonWithIcon("Settings", theme.SettingsIcon(), g.showSettings),
		widget.NewButtonWithIcon("Theme", theme.ColorPaletteIcon(), g.toggleTheme),
	)
	nav := container.NewBorder(nil, nil, g.prevBtn, g.nextBtn, container.NewCenter(g.position))

	tocPanel := container.NewBorder(widget.NewLabel("Chapters"), nil, nil, nil, g.tocList)
	split := container.NewHSplit(tocPanel, container.NewBorder(bar, nav, nil, nil, g.scroll))
	split.Offset = 0.25
	return split
}

func (g *gui) open(id book.ID, index int) {
	if err := g.app.OpenBook(g.ctx, id, index); err != nil {
		g.showNotices()
		return
	}
	g.screens.Objects = []fyne.CanvasObject{g.reading}
	g.screens.Refresh()
	g.showChapter(-1)
}

func (g *gui) goTo(index, progress int) {
	if err := g.app.GoToChapter(index); err != nil {
		g.closeReader()
		return
	}
	g.showChapter(progress)
}

// showChapter renders the current chapter and scrolls to progress, or to
// the saved progress when progress is negative.
func (g *gui) showChapter(progress int) {
	rv, ok := g.app.Reader()
	if !ok {
		g.closeReader()
		return
	}
	g.heading.SetText(rv.Chapter.Title)
	g.body.SetText(reader.PlainText(rv.Chapter.Content))
	g.column.width = float32(g.app.Settings().MaxWidth)
	g.prevBtn.Disable()
	if rv.CanPrevious {
		g.prevBtn.Enable()
	}
	g.nextBtn.Disable()
	if rv.CanNext {
		g.nextBtn.Enable()
	}
	g.win.SetTitle(fmt.Sprintf("%s · %s", rv.Book.Title, rv.Chapter.Title))

	g.toc = g.app.TOC()
	g.tocList.UnselectAll()
	g.tocList.Refresh()

	if progress < 0 {
		progress = g.app.SavedProgress(g.ctx)
	}
	g.restoring = true
	g.scroll.Refresh()
	g.scrollTo(progress)
	g.restoring = false
	_, _ = g.app.ObserveProgress(g.ctx, progress)
	g.updatePosition()
	g.showNotices()
}

func (g *gui) scrollable() float32 {
	return g.scroll.Content.MinSize().Height - g.scroll.Size().Height
}

func (g *gui) scrollPercent() int {
	h := g.scrollable()
	if h <= 0 {
		return 100
	}
	return int(g.scroll.Offset.Y / h * 100)
}

func (g *gui) scrollTo(progress int) {
	h := g.scrollable()
	if h < 0 {
		h = 0
	}
	g.scroll.Offset = fyne.NewPos(0, h*float32(book.ClampProgress(progress))/100)
	g.scroll.Refresh()
}

func (g *gui) updatePosition() {
	if rv, ok := g.app.Reader(); ok {
		g.position.SetText(fmt.Sprintf("Chapter %d/%d · %d%%", rv.Index+1, rv.Total, rv.Progress))
	}
}

func (g *gui) closeReader() {
	g.app.CloseReader()
	g.win.SetTitle("Shelf")
	g.screens.Objects = []fyne.CanvasObject{g.library}
	g.screens.Refresh()
	g.refreshLibrary()
}

func (g *gui) showBookmarks() {
	marks := g.app.Bookmarks(g.ctx)
	if len(marks) == 0 {
		dialog.ShowInformation("Bookmarks", "No bookmarks yet.", g.win)
		return
	}
	var d dialog.Dialog
	list := widget.NewList(
		func() int { return len(marks) },
		func() fyne.CanvasObject { return widget.NewLabel("Bookmark") },
		func(id widget.ListItemID, obj fyne.CanvasObject) {
			bm := marks[id]
			obj.(*widget.Label).SetText(fmt.Sprintf("%s  %s  %d%%", bookmarkTime(bm), bm.ChapterTitle, bm.Progress))
		},
	)
	list.OnSelected = func(id widget.ListItemID) {
		d.Hide()
		g.goTo(marks[id].ChapterIndex, marks[id].Progress)
	}
	d = dialog.NewCustom("Bookmarks", "Close", container.NewGridWrap(fyne.NewSize(420, 300), list), g.win)
	d.Show()
}

func (g *gui) showSettings() {
	st := g.app.Settings()
	update := func(key, value string) {
		_, _ = g.app.UpdateSetting(g.ctx, key, value)
		g.applyTheme()
		if g.app.View() == app.ViewReader {
			g.column.width = float32(g.app.Settings().MaxWidth)
			g.scroll.Refresh()
		}
		g.showNotices()
	}
	slider := func(key string, lo, hi, step, v float64) *widget.Slider {
		s := widget.NewSlider(lo, hi)
		s.Step = step
		s.SetValue(v)
		s.OnChangeEnded = func(v float64) { update(key, strconv.FormatFloat(v, 'f', -1, 64)) }
		return s
	}
	family := widget.NewSelect(book.FontFamilies, func(f string) { update(app.SettingFontFamily, f) })
	family.SetSelected(st.FontFamily)

	form := widget.NewForm(
		widget.NewFormItem("Font size", slider(app.SettingFontSize, book.MinFontSize, book.MaxFontSize, 1, st.FontSize)),
		widget.NewFormItem("Line height", slider(app.SettingLineHeight, book.MinLineHeight, book.MaxLineHeight, 0.1, st.LineHeight)),
		widget.NewFormItem("Font family", family),
		widget.NewFormItem("Max width", slider(app.SettingMaxWidth, book.MinMaxWidth, book.MaxMaxWidth, 50, st.MaxWidth)),
	)
	d := dialog.NewCustom("Reader settings", "Close", form, g.win)
	d.Resize(fyne.NewSize(420, 280))
	d.Show()
}

func (g *gui) toggleTheme() {
	g.app.ToggleTheme(g.ctx)
	g.applyTheme()
}

func (g *gui) applyTheme() {
	g.theme = &readerTheme{Theme: theme.DefaultTheme(), dark: g.app.Dark(), settings: g.app.Settings()}
	g.fyne.Settings().SetTheme(g.theme)
}

func (g *gui) askPassword(b book.Book) {
	pw := widget.NewPasswordEntry()
	dialog.ShowForm("Edit "+b.Title, "Continue", "Cancel",
		[]*widget.FormItem{widget.NewFormItem("Password", pw)},
		func(ok bool) {
			if !ok {
				return
			}
			authorized, err := g.app.Authorize(b.ID, pw.Text)
			if err != nil {
				g.showNotices()
				return
			}
			g.showForm(&authorized, pw.Text)
		}, g.win)
}

// showForm opens the book editor: empty for a new book, filled from b for
// an edit authorized with password.
func (g *gui) showForm(b *book.Book, password string) {
	var f app.Form
	if b != nil {
		f = app.FormFrom(*b)
	}
	title := entryWith(f.Title)
	author := entryWith(f.Author)
	category := entryWith(f.Category)
	cover := entryWith(f.Cover)
	description := widget.NewMultiLineEntry()
	description.SetText(f.Description)
	pw := widget.NewPasswordEntry()

	type row struct{ title, content *widget.Entry }
	var rows []row
	chapters := container.NewVBox()
	addRow := func(in app.ChapterInput) {
		t := entryWith(in.Title)
		t.SetPlaceHolder(book.DefaultChapterTitle(len(rows) + 1))
		c := widget.NewMultiLineEntry()
		c.SetText(in.Content)
		c.SetMinRowsVisible(4)
		rows = append(rows, row{t, c})
		chapters.Add(container.NewVBox(t, c, widget.NewSeparator()))
	}
	for _, in := range f.Chapters {
		addRow(in)
	}
	if len(rows) == 0 {
		addRow(app.ChapterInput{})
	}

	items := []*widget.FormItem{
		widget.NewFormItem("Title", title),
		widget.NewFormItem("Author", author),
		widget.NewFormItem("Category", category),
		widget.NewFormItem("Cover", cover),
		widget.NewFormItem("Description", description),
	}
	if b == nil {
		items = append(items, widget.NewFormItem("Password", pw))
	}
	content := container.NewBorder(widget.NewForm(items...), widget.NewButtonWithIcon("Add chapter", theme.ContentAddIcon(), func() {
		addRow(app.ChapterInput{})
	}), nil, nil, container.NewVScroll(chapters))

	heading := "New book"
	if b != nil {
		heading = "Edit book"
	}
	d := dialog.NewCustomConfirm(heading, "Save", "Cancel", content, func(ok bool) {
		if !ok {
			return
		}
		out := app.Form{
			Title:       title.Text,
			Author:      author.Text,
			Category:    category.Text,
			Cover:       cover.Text,
			Description: description.Text,
			Password:    pw.Text,
		}
		for _, r := range rows {
			out.Chapters = append(out.Chapters, app.ChapterInput{Title: r.title.Text, Content: r.content.Text})
		}
		var err error
		if b == nil {
			_, err = g.app.CreateBook(g.ctx, out)
		} else {
			_, err = g.app.EditBook(g.ctx, b.ID, password, out)
		}
		if err != nil {
			g.showNotices()
			return
		}
		if g.app.View() == app.ViewReader {
			g.showChapter(-1)
		}
		g.refreshLibrary()
	}, g.win)
	d.Resize(fyne.NewSize(640, 680))
	d.Show()
}

func (g *gui) typedKey(ev *fyne.KeyEvent) {
	if g.app.View() != app.ViewReader {
		return
	}
	switch ev.Name {
	case fyne.KeyLeft:
		if g.app.PreviousChapter() {
			g.showChapter(-1)
		}
	case fyne.KeyRight:
		if g.app.NextChapter() {
			g.showChapter(-1)
		}
	case fyne.KeyEscape:
		g.closeReader()
	case fyne.KeyM:
		_, _ = g.app.AddBookmark(g.ctx)
		g.showNotices()
	}
}

// showNotices puts the newest notice in the status bar and raises errors
// as dialogs.
func (g *gui) showNotices() {
	for _, n := range g.notices.Drain() {
		g.status.SetText(n.Message)
		if n.Level == notify.Error {
			dialog.ShowInformation("Error", n.Message, g.win)
		}
	}
}

func entryWith(text string) *widget.Entry {
	e := widget.NewEntry()
	e.SetText(text)
	return e
}

// hexColor parses #rrggbb, returning grey for anything else.
func hexColor(s string) color.Color {
	var r, g, b uint8
	if _, err := fmt.Sscanf(s, "#%02x%02x%02x", &r, &g, &b); err != nil {
		return color.Gray{Y: 0x80}
	}
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}
