package ingest

import (
	"bytes"
	"os"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/metcalfc/shelf/internal/book"
)

// HTMLFormat reads the bundled novel markup: metadata in <meta> tags or a
// .novel-info block, and one .chapter element per chapter holding an <h2>
// title and a .content body.
type HTMLFormat struct{}

func init() {
	Register(&HTMLFormat{})
}

func (f *HTMLFormat) Name() string         { return "HTML" }
func (f *HTMLFormat) Extensions() []string { return []string{".html", ".htm"} }

// Label prefixes stripped from .novel-info fields.
const (
	authorLabel   = "作者："
	categoryLabel = "類別："
)

func (f *HTMLFormat) Parse(filename string) (book.Book, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return book.Book{}, err
	}
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return book.Book{}, err
	}

	info := findClass(doc, "novel-info")
	fromInfo := func(class string) string {
		if info == nil {
			return ""
		}
		if n := findClass(info, class); n != nil {
			return textContent(n)
		}
		return ""
	}

	var b book.Book
	if n := findElement(doc, atom.Title); n != nil {
		b.Title = textContent(n)
	}
	if b.Title == "" && info != nil {
		if n := findElement(info, atom.H1); n != nil {
			b.Title = textContent(n)
		}
	}

	b.Author = firstNonEmpty(metaContent(doc, "author"), strings.Replace(fromInfo("author"), authorLabel, "", 1))
	b.Category = firstNonEmpty(metaContent(doc, "category"), strings.Replace(fromInfo("category"), categoryLabel, "", 1))
	b.Description = firstNonEmpty(metaContent(doc, "description"), fromInfo("description"))

	cover := metaContent(doc, "cover")
	if cover == "" && info != nil {
		if n := findClass(info, "cover"); n != nil {
			cover = attr(n, "src")
		}
	}
	if cover == "" {
		if n := findClass(doc, "cover-image"); n != nil {
			cover = attr(n, "src")
		}
	}
	b.Cover = resolveCover(cover, filename)

	for i, ch := range findAllClass(doc, "chapter") {
		title := book.DefaultChapterTitle(i + 1)
		if n := findElement(ch, atom.H2); n != nil && textContent(n) != "" {
			title = textContent(n)
		}
		var content string
		if n := findClass(ch, "content"); n != nil {
			content = strings.TrimSpace(innerHTML(n))
		}
		b.Chapters = append(b.Chapters, book.Chapter{Title: title, Content: content})
	}
	return b, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func metaContent(doc *html.Node, name string) string {
	var found string
	walkElements(doc, func(n *html.Node) bool {
		if n.DataAtom == atom.Meta && strings.EqualFold(attr(n, "name"), name) {
			found = strings.TrimSpace(attr(n, "content"))
			return false
		}
		return true
	})
	return found
}

// walkElements visits element nodes depth-first in document order until
// visit returns false.
func walkElements(root *html.Node, visit func(*html.Node) bool) bool {
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && !visit(c) {
			return false
		}
		if !walkElements(c, visit) {
			return false
		}
	}
	return true
}

func findElement(root *html.Node, a atom.Atom) *html.Node {
	var found *html.Node
	walkElements(root, func(n *html.Node) bool {
		if n.DataAtom == a {
			found = n
			return false
		}
		return true
	})
	return found
}

func findClass(root *html.Node, class string) *html.Node {
	var found *html.Node
	walkElements(root, func(n *html.Node) bool {
		if hasClass(n, class) {
			found = n
			return false
		}
		return true
	})
	return found
}

func findAllClass(root *html.Node, class string) []*html.Node {
	var out []*html.Node
	walkElements(root, func(n *html.Node) bool {
		if hasClass(n, class) {
			out = append(out, n)
		}
		return true
	})
	return out
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}

func innerHTML(n *html.Node) string {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return buf.String()
		}
	}
	return buf.String()
}
