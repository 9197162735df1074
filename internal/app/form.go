package app

import (
	"errors"
	"strings"

	"github.com/metcalfc/shelf/internal/book"
	"github.com/metcalfc/shelf/internal/library"
)

var (
	ErrMissingFields = errors.New("title, author and password are required")
	ErrNoChapters    = errors.New("at least one chapter with a title and content is required")
	ErrReservedName  = errors.New(`category "` + library.All + `" is reserved`)
)

// ChapterInput is one chapter row of the book form.
type ChapterInput struct {
	Title   string
	Content string
}

// Form is the book creation and edit form.
type Form struct {
	Title       string
	Author      string
	Category    string
	Password    string
	Cover       string
	Description string
	Chapters    []ChapterInput
}

// FormFrom fills a form from an existing book, for editing. The password
// is left empty.
func FormFrom(b book.Book) Form {
	f := Form{
		Title:       b.Title,
		Author:      b.Author,
		Category:    b.Category,
		Cover:       b.Cover,
		Description: b.Description,
	}
	for _, ch := range b.Chapters {
		f.Chapters = append(f.Chapters, ChapterInput{Title: ch.Title, Content: ch.Content})
	}
	return f
}

// Validate checks the required fields. The password is only required when
// creating a book.
func (f Form) Validate(creating bool) error {
	if book.IsBlank(f.Title) || book.IsBlank(f.Author) || (creating && book.IsBlank(f.Password)) {
		return ErrMissingFields
	}
	if strings.EqualFold(strings.TrimSpace(f.Category), library.All) {
		return ErrReservedName
	}
	if len(f.chapters()) == 0 {
		return ErrNoChapters
	}
	return nil
}

// chapters keeps rows whose title and content are both non-blank and
// numbers them from 1.
func (f Form) chapters() []book.Chapter {
	var out []book.Chapter
	for _, in := range f.Chapters {
		title := strings.TrimSpace(in.Title)
		content := strings.TrimSpace(in.Content)
		if title == "" || content == "" {
			continue
		}
		out = append(out, book.Chapter{Title: title, Content: content})
	}
	return book.Renumber(out)
}

// toBook builds the record the form describes, without an id.
func (f Form) toBook() book.Book {
	return book.Book{
		Title:       strings.TrimSpace(f.Title),
		Author:      strings.TrimSpace(f.Author),
		Category:    strings.TrimSpace(f.Category),
		Description: strings.TrimSpace(f.Description),
		Cover:       strings.TrimSpace(f.Cover),
		Password:    f.Password,
		Chapters:    f.chapters(),
	}
}
