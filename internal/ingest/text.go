package ingest

import (
	"html"
	"os"
	"regexp"
	"strings"

	"github.com/metcalfc/shelf/internal/book"
)

// TextFormat reads plain text. The whole file becomes one chapter whose
// paragraphs are separated by blank lines.
type TextFormat struct{}

func init() {
	Register(&TextFormat{})
}

func (f *TextFormat) Name() string         { return "Text" }
func (f *TextFormat) Extensions() []string { return []string{".txt"} }

var blankLines = regexp.MustCompile(`\r?\n\s*\r?\n`)

func (f *TextFormat) Parse(filename string) (book.Book, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return book.Book{}, err
	}
	content := paragraphs(string(data))
	if content == "" {
		return book.Book{}, nil
	}
	return book.Book{Chapters: []book.Chapter{{
		Title:   book.DefaultChapterTitle(1),
		Content: content,
	}}}, nil
}

func paragraphs(s string) string {
	var sb strings.Builder
	for _, p := range blankLines.Split(s, -1) {
		p = strings.TrimSpace(strings.ReplaceAll(p, "\r\n", "\n"))
		if p == "" {
			continue
		}
		sb.WriteString("<p>")
		sb.WriteString(strings.ReplaceAll(html.EscapeString(p), "\n", "<br>"))
		sb.WriteString("</p>")
	}
	return sb.String()
}
