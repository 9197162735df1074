package ingest

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"gopkg.in/yaml.v3"

	"github.com/metcalfc/shelf/internal/book"
)

// MarkdownFormat reads Markdown novels. Optional YAML front matter carries
// the metadata; headings split the text into chapters.
type MarkdownFormat struct{}

func init() {
	Register(&MarkdownFormat{})
}

func (f *MarkdownFormat) Name() string         { return "Markdown" }
func (f *MarkdownFormat) Extensions() []string { return []string{".md", ".markdown"} }

// headerRegex matches markdown headers (# to ######)
var headerRegex = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
)

type frontMatter struct {
	Title       string `yaml:"title"`
	Author      string `yaml:"author"`
	Category    string `yaml:"category"`
	Description string `yaml:"description"`
	Cover       string `yaml:"cover"`
}

type mdSection struct {
	level int
	title string
	lines []string
}

func (f *MarkdownFormat) Parse(filename string) (book.Book, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return book.Book{}, err
	}

	fm, body, err := splitFrontMatter(data)
	if err != nil {
		return book.Book{}, fmt.Errorf("front matter: %w", err)
	}
	b := book.Book{
		Title:       fm.Title,
		Author:      fm.Author,
		Category:    fm.Category,
		Description: fm.Description,
		Cover:       resolveCover(fm.Cover, filename),
	}

	preamble, sections, err := scanSections(body)
	if err != nil {
		return book.Book{}, err
	}

	// A lone top-level heading above ## sections names the book.
	split := 1
	var h1, h2 int
	for _, s := range sections {
		switch s.level {
		case 1:
			h1++
		case 2:
			h2++
		}
	}
	if h1 <= 1 && h2 > 0 {
		split = 2
	}

	var chapters []mdSection
	for _, s := range sections {
		switch {
		case s.level == 1 && split == 2:
			if b.Title == "" {
				b.Title = s.title
			}
			preamble = append(preamble, s.lines...)
		case s.level <= split:
			chapters = append(chapters, s)
		case len(chapters) > 0:
			last := &chapters[len(chapters)-1]
			last.lines = append(last.lines, strings.Repeat("#", s.level)+" "+s.title)
			last.lines = append(last.lines, s.lines...)
		default:
			preamble = append(preamble, strings.Repeat("#", s.level)+" "+s.title)
			preamble = append(preamble, s.lines...)
		}
	}

	intro := strings.TrimSpace(strings.Join(preamble, "\n"))
	if len(chapters) == 0 {
		if intro != "" {
			chapters = append(chapters, mdSection{lines: preamble})
		}
	} else if b.Description == "" {
		b.Description = intro
	}

	for i, s := range chapters {
		content, err := render(strings.Join(s.lines, "\n"))
		if err != nil {
			return book.Book{}, err
		}
		title := s.title
		if title == "" {
			title = book.DefaultChapterTitle(i + 1)
		}
		b.Chapters = append(b.Chapters, book.Chapter{Title: title, Content: content})
	}
	return b, nil
}

// splitFrontMatter separates a leading "---" delimited YAML block from the
// document body.
func splitFrontMatter(data []byte) (frontMatter, []byte, error) {
	var fm frontMatter
	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	if !bytes.HasPrefix(data, []byte("---\n")) && !bytes.HasPrefix(data, []byte("---\r\n")) {
		return fm, data, nil
	}
	rest := data[bytes.IndexByte(data, '\n')+1:]
	for off := 0; off < len(rest); {
		end := bytes.IndexByte(rest[off:], '\n')
		line := rest[off:]
		if end >= 0 {
			line = rest[off : off+end]
		}
		if strings.TrimRight(string(line), "\r") == "---" {
			if err := yaml.Unmarshal(rest[:off], &fm); err != nil {
				return fm, nil, err
			}
			if end < 0 {
				return fm, nil, nil
			}
			return fm, rest[off+end+1:], nil
		}
		if end < 0 {
			break
		}
		off += end + 1
	}
	// Unterminated block: treat the whole file as body.
	return frontMatter{}, data, nil
}

// scanSections groups lines under their headings. Lines inside fenced code
// blocks never start a section.
func scanSections(body []byte) ([]string, []mdSection, error) {
	var preamble []string
	var sections []mdSection
	fenced := false

	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			fenced = !fenced
		}
		if !fenced {
			if match := headerRegex.FindStringSubmatch(line); match != nil {
				sections = append(sections, mdSection{
					level: len(match[1]),
					title: strings.TrimSpace(strings.TrimRight(match[2], "# ")),
				})
				continue
			}
		}
		if len(sections) == 0 {
			preamble = append(preamble, line)
		} else {
			last := &sections[len(sections)-1]
			last.lines = append(last.lines, line)
		}
	}
	return preamble, sections, scanner.Err()
}

func render(src string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("converting markdown: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}
