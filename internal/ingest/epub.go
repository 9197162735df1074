package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/taylorskalyo/goreader/epub"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/metcalfc/shelf/internal/book"
)

// EPUBFormat reads EPUB files. Each non-empty spine item becomes a chapter.
type EPUBFormat struct{}

func init() {
	Register(&EPUBFormat{})
}

func (f *EPUBFormat) Name() string         { return "EPUB" }
func (f *EPUBFormat) Extensions() []string { return []string{".epub"} }

func (f *EPUBFormat) Parse(filename string) (book.Book, error) {
	rc, err := epub.OpenReader(filename)
	if err != nil {
		return book.Book{}, fmt.Errorf("failed to open epub: %w", err)
	}
	defer rc.Close()

	if len(rc.Rootfiles) == 0 {
		return book.Book{}, errors.New("no rootfiles found in epub")
	}
	rf := rc.Rootfiles[0]

	b := book.Book{
		Title:       rf.Metadata.Title,
		Author:      rf.Metadata.Creator,
		Category:    rf.Metadata.Subject,
		Description: extractTextFromHTML(rf.Metadata.Description),
	}

	titles := buildTOCHrefMap(filename, rf)
	for i, ref := range rf.Spine.Itemrefs {
		if ref.Item == nil {
			continue
		}
		r, err := ref.Item.Open()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(r)
		r.Close()
		if err != nil {
			continue
		}

		body := bodyHTML(data)
		if strings.TrimSpace(extractTextFromHTML(body)) == "" {
			continue
		}

		title := fmt.Sprintf("Section %d", i+1)
		if ref.Item.HREF != "" {
			if t, ok := titles[ref.Item.HREF]; ok && t != "" {
				title = t
			} else if t, ok := titles[path.Base(ref.Item.HREF)]; ok && t != "" {
				title = t
			}
		}
		b.Chapters = append(b.Chapters, book.Chapter{Title: title, Content: body})
	}
	return b, nil
}

// bodyHTML returns the markup inside <body>, or the whole document when
// there is no body element.
func bodyHTML(data []byte) string {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return string(data)
	}
	body := findElement(doc, atom.Body)
	if body == nil {
		return string(data)
	}
	return strings.TrimSpace(innerHTML(body))
}

func extractTextFromHTML(s string) string {
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return ""
	}

	var words []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style) {
			return
		}
		if n.Type == html.TextNode {
			words = append(words, strings.Fields(n.Data)...)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.Join(words, " ")
}
