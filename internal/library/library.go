// Package library derives what the library view shows from the catalog and
// the transient search, category and layout choices.
package library

import (
	"hash/fnv"
	"strings"

	"github.com/metcalfc/shelf/internal/book"
)

// All is the category chip that matches every book.
const All = "all"

// Mode is the library layout.
type Mode string

const (
	Grid Mode = "grid"
	List Mode = "list"
)

// ParseMode returns the layout named by s, defaulting to Grid.
func ParseMode(s string) Mode {
	if Mode(s) == List {
		return List
	}
	return Grid
}

// Toggle switches between grid and list.
func (m Mode) Toggle() Mode {
	if m == Grid {
		return List
	}
	return Grid
}

// Query holds the filter inputs. An empty Category behaves like All.
type Query struct {
	Search   string
	Category string
}

// EmptyState distinguishes an empty catalog from a filter that matched
// nothing.
type EmptyState int

const (
	Populated EmptyState = iota
	NoBooks
	NoMatches
)

// Page is everything the library view renders.
type Page struct {
	Books      []book.Book
	Categories []string
	Selected   string
	Mode       Mode
	Empty      EmptyState
}

// Project filters books and bundles the result with the category chips.
func Project(books []book.Book, q Query, mode Mode) Page {
	filtered := Filter(books, q)
	selected := q.Category
	if selected == "" {
		selected = All
	}
	return Page{
		Books:      filtered,
		Categories: Categories(books),
		Selected:   selected,
		Mode:       mode,
		Empty:      State(len(books), len(filtered)),
	}
}

// Filter keeps books whose title or author contains the search term (case
// insensitive) and whose category equals the selected one. Order is kept.
func Filter(books []book.Book, q Query) []book.Book {
	out := make([]book.Book, 0, len(books))
	for _, b := range books {
		if MatchesSearch(b, q.Search) && MatchesCategory(b, q.Category) {
			out = append(out, b)
		}
	}
	return out
}

// MatchesSearch reports whether the title or author contains term.
func MatchesSearch(b book.Book, term string) bool {
	if term == "" {
		return true
	}
	term = strings.ToLower(term)
	return strings.Contains(strings.ToLower(b.Title), term) ||
		strings.Contains(strings.ToLower(b.Author), term)
}

// MatchesCategory reports whether b belongs to category.
func MatchesCategory(b book.Book, category string) bool {
	return category == "" || category == All || b.Category == category
}

// Categories returns All followed by the distinct non-empty categories in
// the order they first appear.
func Categories(books []book.Book) []string {
	out := []string{All}
	seen := map[string]bool{All: true}
	for _, b := range books {
		if b.Category == "" || seen[b.Category] {
			continue
		}
		seen[b.Category] = true
		out = append(out, b.Category)
	}
	return out
}

// State classifies an empty result.
func State(total, shown int) EmptyState {
	switch {
	case total == 0:
		return NoBooks
	case shown == 0:
		return NoMatches
	default:
		return Populated
	}
}

var coverPalette = []string{"#667eea", "#764ba2", "#f093fb", "#f5576c", "#4facfe", "#43e97b"}

// Cover returns the two gradient colours of the placeholder cover drawn for
// books without one. The pair is stable for a given title.
func Cover(title string) (from, to string) {
	h := fnv.New32a()
	h.Write([]byte(title))
	sum := h.Sum32()
	n := uint32(len(coverPalette))
	return coverPalette[sum%n], coverPalette[(sum/n)%n]
}
