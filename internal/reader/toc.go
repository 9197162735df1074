package reader

import "strings"

const (
	previewWords = 10
	previewRunes = 60
)

// TOCEntry is one line of the chapter list.
type TOCEntry struct {
	Index   int
	Title   string
	Preview string
	Current bool
}

// TOC lists the chapters of the open book with short previews.
func (s *Session) TOC() []TOCEntry {
	if !s.Active() {
		return nil
	}
	entries := make([]TOCEntry, len(s.book.Chapters))
	for i, ch := range s.book.Chapters {
		entries[i] = TOCEntry{
			Index:   i,
			Title:   ch.Title,
			Preview: Preview(ch.Content),
			Current: i == s.index,
		}
	}
	return entries
}

// Preview returns the first words of a chapter body.
func Preview(content string) string {
	words := strings.Fields(PlainText(content))
	more := len(words) > previewWords
	if more {
		words = words[:previewWords]
	}
	// Text without spaces (CJK) arrives as a single long word.
	runes := []rune(strings.Join(words, " "))
	if len(runes) > previewRunes {
		runes, more = runes[:previewRunes], true
	}
	if more {
		return string(runes) + "..."
	}
	return string(runes)
}
