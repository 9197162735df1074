// Package catalog holds the user-added and built-in books.
package catalog

import (
	"context"
	"errors"
	"sync"

	"github.com/metcalfc/shelf/internal/book"
)

// ErrReadOnly is returned when a caller tries to modify a built-in book.
var ErrReadOnly = errors.New("built-in books cannot be modified")

// Saver persists the user-book collection.
type Saver interface {
	SaveCatalog(ctx context.Context, books []book.Book) error
}

// Store owns the user books and keeps a read-only list of built-in books
// next to them. User books come first in every enumeration; each group
// keeps insertion order.
type Store struct {
	mu      sync.RWMutex
	user    []book.Book
	builtIn []book.Book
	saver   Saver
}

// New returns a Store seeded with previously persisted user books.
func New(user []book.Book, saver Saver) *Store {
	s := &Store{saver: saver}
	for _, b := range user {
		b.BuiltIn = false
		s.user = append(s.user, b.Clone())
	}
	return s
}

// Add stores a new user book under a fresh id and persists the collection.
// Required fields are not checked here.
func (s *Store) Add(ctx context.Context, b book.Book) book.Book {
	b = b.Clone()
	b.ID = book.NewID()
	b.BuiltIn = false
	if b.Chapters == nil {
		b.Chapters = []book.Chapter{}
	}

	s.mu.Lock()
	s.user = append(s.user, b)
	snapshot := s.snapshotUser()
	s.mu.Unlock()

	_ = s.persist(ctx, snapshot)
	return b.Clone()
}

// Update replaces the user book with the same id. It reports false without
// error when no such user book exists. A failed save still leaves the
// update in memory and returns true with the save error.
func (s *Store) Update(ctx context.Context, b book.Book) (bool, error) {
	s.mu.Lock()
	if s.isBuiltIn(b.ID) {
		s.mu.Unlock()
		return false, ErrReadOnly
	}
	i := s.indexUser(b.ID)
	if i < 0 {
		s.mu.Unlock()
		return false, nil
	}
	b = b.Clone()
	b.BuiltIn = false
	s.user[i] = b
	snapshot := s.snapshotUser()
	s.mu.Unlock()

	return true, s.persist(ctx, snapshot)
}

// Delete removes the user book with the given id and persists the result.
// Deleting an unknown id changes nothing. Save errors are returned after
// the in-memory removal.
func (s *Store) Delete(ctx context.Context, id book.ID) (bool, error) {
	s.mu.Lock()
	if s.isBuiltIn(id) {
		s.mu.Unlock()
		return false, ErrReadOnly
	}
	i := s.indexUser(id)
	if i >= 0 {
		s.user = append(s.user[:i], s.user[i+1:]...)
	}
	snapshot := s.snapshotUser()
	s.mu.Unlock()

	return i >= 0, s.persist(ctx, snapshot)
}

// All returns user books followed by built-in books.
func (s *Store) All() []book.Book {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]book.Book, 0, len(s.user)+len(s.builtIn))
	for _, b := range s.user {
		out = append(out, b.Clone())
	}
	for _, b := range s.builtIn {
		out = append(out, b.Clone())
	}
	return out
}

// User returns the user books.
func (s *Store) User() []book.Book {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotUser()
}

// BuiltIn returns the built-in books.
func (s *Store) BuiltIn() []book.Book {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]book.Book, len(s.builtIn))
	for i, b := range s.builtIn {
		out[i] = b.Clone()
	}
	return out
}

// Find looks a book up in either collection.
func (s *Store) Find(id book.ID) (book.Book, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexUser(id); i >= 0 {
		return s.user[i].Clone(), true
	}
	for _, b := range s.builtIn {
		if b.ID == id {
			return b.Clone(), true
		}
	}
	return book.Book{}, false
}

// SetBuiltIn replaces the built-in collection.
func (s *Store) SetBuiltIn(books []book.Book) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.builtIn = s.builtIn[:0]
	for _, b := range books {
		s.appendBuiltIn(b)
	}
}

// AppendBuiltIn adds one ingested book to the built-in collection.
func (s *Store) AppendBuiltIn(b book.Book) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendBuiltIn(b)
}

func (s *Store) appendBuiltIn(b book.Book) {
	b = b.Clone()
	b.BuiltIn = true
	b.Password = ""
	s.builtIn = append(s.builtIn, b)
}

func (s *Store) isBuiltIn(id book.ID) bool {
	for _, b := range s.builtIn {
		if b.ID == id {
			return true
		}
	}
	return false
}

func (s *Store) indexUser(id book.ID) int {
	for i, b := range s.user {
		if b.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) snapshotUser() []book.Book {
	out := make([]book.Book, len(s.user))
	for i, b := range s.user {
		out[i] = b.Clone()
	}
	return out
}

// persist failures are also reported by the saver; the in-memory state
// stays authoritative either way.
func (s *Store) persist(ctx context.Context, books []book.Book) error {
	if s.saver == nil {
		return nil
	}
	return s.saver.SaveCatalog(ctx, books)
}
