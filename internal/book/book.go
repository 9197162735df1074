// Package book defines the catalog records shared by every other package.
package book

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ID identifies a book across both the user and built-in collections.
type ID string

const builtInPrefix = "builtin-"

// UnmarshalJSON accepts both string ids and the numeric ids written by
// older catalogs, canonicalizing numbers to their decimal string.
func (id *ID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("book id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// NewID returns a fresh id for a user-created book.
func NewID() ID {
	return ID(uuid.NewString())
}

// builtInSpace namespaces the name-based UUIDs of built-in books.
var builtInSpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("shelf:builtin"))

// BuiltInID returns the id of a book ingested from the bundled file at
// rel. The same path always yields the same id, so reading state kept
// under it survives a restart.
func BuiltInID(rel string) ID {
	return ID(builtInPrefix + uuid.NewSHA1(builtInSpace, []byte(rel)).String())
}

// Chapter is one numbered content unit of a book. ID is the 1-based
// position of the chapter within its book.
type Chapter struct {
	ID      int    `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Book is a catalog entry.
type Book struct {
	ID          ID        `json:"id"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Cover       string    `json:"cover,omitempty"`
	Chapters    []Chapter `json:"chapters"`
	BuiltIn     bool      `json:"isBuiltIn"`
	// Password gates edits of user books. It is compared in plaintext and
	// is a deterrent only.
	Password string `json:"password,omitempty"`
	// Source is the bundled file a built-in book was ingested from.
	Source string `json:"fileName,omitempty"`
}

// Readable reports whether the book can be offered in the reader.
func (b Book) Readable() bool {
	return len(b.Chapters) > 0
}

// Clone returns a copy of b that shares no slices with it.
func (b Book) Clone() Book {
	if b.Chapters != nil {
		b.Chapters = append([]Chapter(nil), b.Chapters...)
	}
	return b
}

// Renumber assigns chapter ids 1..n in order.
func Renumber(chapters []Chapter) []Chapter {
	out := make([]Chapter, len(chapters))
	for i, c := range chapters {
		c.ID = i + 1
		out[i] = c
	}
	return out
}

// DefaultChapterTitle is used for chapters whose heading is missing.
func DefaultChapterTitle(n int) string {
	return "第" + strconv.Itoa(n) + "章"
}

// Bookmark records a reading position inside a book.
type Bookmark struct {
	ID           int64  `json:"id"`
	ChapterID    int    `json:"chapterId"`
	ChapterTitle string `json:"chapterTitle"`
	ChapterIndex int    `json:"chapterIndex"`
	Progress     int    `json:"progress"`
	Timestamp    string `json:"timestamp"`
}

// NewBookmark captures chapter c at position index with the given progress.
func NewBookmark(c Chapter, index, progress int, now time.Time) Bookmark {
	return Bookmark{
		ID:           now.UnixMilli(),
		ChapterID:    c.ID,
		ChapterTitle: c.Title,
		ChapterIndex: index,
		Progress:     ClampProgress(progress),
		Timestamp:    now.UTC().Format(time.RFC3339Nano),
	}
}

// ClampProgress bounds a scroll percentage to [0,100].
func ClampProgress(p int) int {
	return max(0, min(100, p))
}

// IsBlank reports whether s is empty after trimming whitespace.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
