package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/metcalfc/shelf/internal/book"
)

type recordingSaver struct {
	saves [][]book.Book
}

func (r *recordingSaver) SaveCatalog(_ context.Context, books []book.Book) error {
	r.saves = append(r.saves, books)
	return nil
}

func (r *recordingSaver) last() []book.Book {
	if len(r.saves) == 0 {
		return nil
	}
	return r.saves[len(r.saves)-1]
}

var errDiskFull = errors.New("disk full")

type failingSaver struct{}

func (failingSaver) SaveCatalog(context.Context, []book.Book) error { return errDiskFull }

func builtIns() []book.Book {
	return []book.Book{
		{ID: "builtin-1", Title: "Shadow Night", Author: "Lifer", Category: "built-in",
			Chapters: []book.Chapter{{ID: 1, Title: "One", Content: "x"}}},
		{ID: "builtin-2", Title: "Dream", Author: "Lifer", Category: "fantasy",
			Chapters: []book.Chapter{{ID: 1, Title: "One", Content: "y"}}},
	}
}

func TestEmpty(t *testing.T) {
	s := New(nil, nil)
	if got := s.All(); got == nil || len(got) != 0 {
		t.Errorf("All() = %v, want empty slice", got)
	}
}

func TestAdd(t *testing.T) {
	ctx := context.Background()
	saver := &recordingSaver{}
	s := New(nil, saver)

	created := s.Add(ctx, book.Book{Title: "Mine", Author: "Me", Password: "pw"})
	if created.ID == "" {
		t.Fatal("Add did not assign an id")
	}
	if created.Chapters == nil {
		t.Error("Add should default chapters to an empty slice")
	}

	all := s.All()
	if len(all) != 1 {
		t.Fatalf("All() has %d books, want 1", len(all))
	}
	if diff := cmp.Diff(created, all[0]); diff != "" {
		t.Errorf("stored book mismatch (-want +got):\n%s", diff)
	}
	if len(saver.saves) != 1 || len(saver.last()) != 1 {
		t.Errorf("Add should persist once, saves = %d", len(saver.saves))
	}

	other := s.Add(ctx, book.Book{Title: "Second"})
	if other.ID == created.ID {
		t.Error("ids must be unique")
	}
}

func TestAddIgnoresCallerIDAndBuiltInFlag(t *testing.T) {
	s := New(nil, nil)
	created := s.Add(context.Background(), book.Book{ID: "builtin-1", BuiltIn: true})
	if created.ID == "builtin-1" || created.BuiltIn {
		t.Errorf("Add kept caller id or built-in flag: %+v", created)
	}
}

func TestListAllOrder(t *testing.T) {
	ctx := context.Background()
	s := New(nil, nil)
	s.SetBuiltIn(builtIns())
	a := s.Add(ctx, book.Book{Title: "A"})
	b := s.Add(ctx, book.Book{Title: "B"})

	var ids []book.ID
	for _, bk := range s.All() {
		ids = append(ids, bk.ID)
	}
	want := []book.ID{a.ID, b.ID, "builtin-1", "builtin-2"}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateOverwrites(t *testing.T) {
	ctx := context.Background()
	saver := &recordingSaver{}
	s := New(nil, saver)
	created := s.Add(ctx, book.Book{Title: "Old", Author: "A", Description: "keep?", Password: "pw"})

	replacement := book.Book{ID: created.ID, Title: "New", Author: "B", Password: "pw"}
	ok, err := s.Update(ctx, replacement)
	if err != nil || !ok {
		t.Fatalf("Update = %v, %v", ok, err)
	}

	got, _ := s.Find(created.ID)
	if got.Description != "" {
		t.Errorf("Update merged instead of overwriting: %+v", got)
	}
	if got.Title != "New" {
		t.Errorf("Title = %q", got.Title)
	}
	if len(saver.saves) != 2 {
		t.Errorf("saves = %d, want 2", len(saver.saves))
	}
}

func TestUpdateMissingIsNoop(t *testing.T) {
	saver := &recordingSaver{}
	s := New(nil, saver)
	ok, err := s.Update(context.Background(), book.Book{ID: "nope", Title: "x"})
	if ok || err != nil {
		t.Errorf("Update(missing) = %v, %v; want false, nil", ok, err)
	}
	if len(saver.saves) != 0 || len(s.All()) != 0 {
		t.Error("Update(missing) changed state")
	}
}

func TestDeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	s := New(nil, nil)
	s.SetBuiltIn(builtIns())
	keep := s.Add(ctx, book.Book{Title: "keep"})
	drop := s.Add(ctx, book.Book{Title: "drop"})

	if ok, err := s.Delete(ctx, drop.ID); !ok || err != nil {
		t.Fatalf("Delete = %v, %v", ok, err)
	}
	once := s.All()

	if ok, err := s.Delete(ctx, drop.ID); ok || err != nil {
		t.Fatalf("second Delete = %v, %v; want false, nil", ok, err)
	}
	if diff := cmp.Diff(once, s.All()); diff != "" {
		t.Errorf("second delete changed catalog (-once +twice):\n%s", diff)
	}
	if _, ok := s.Find(keep.ID); !ok {
		t.Error("unrelated book removed")
	}
}

func TestSaveErrorsReturned(t *testing.T) {
	ctx := context.Background()
	s := New([]book.Book{{ID: "u1", Title: "Old"}, {ID: "u2", Title: "Gone"}}, failingSaver{})

	ok, err := s.Update(ctx, book.Book{ID: "u1", Title: "New"})
	if !ok || !errors.Is(err, errDiskFull) {
		t.Errorf("Update = %v, %v; want true, errDiskFull", ok, err)
	}
	if got, _ := s.Find("u1"); got.Title != "New" {
		t.Errorf("title after failed save = %q, want New", got.Title)
	}

	ok, err = s.Delete(ctx, "u2")
	if !ok || !errors.Is(err, errDiskFull) {
		t.Errorf("Delete = %v, %v; want true, errDiskFull", ok, err)
	}
	if _, found := s.Find("u2"); found {
		t.Error("book still present after delete")
	}

	if created := s.Add(ctx, book.Book{Title: "Added"}); created.ID == "" {
		t.Error("Add should still assign an id")
	}
}

func TestBuiltInReadOnly(t *testing.T) {
	ctx := context.Background()
	saver := &recordingSaver{}
	s := New(nil, saver)
	s.SetBuiltIn(builtIns())
	before := s.BuiltIn()

	if _, err := s.Update(ctx, book.Book{ID: "builtin-1", Title: "hacked"}); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Update(built-in) err = %v, want ErrReadOnly", err)
	}
	if _, err := s.Delete(ctx, "builtin-2"); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Delete(built-in) err = %v, want ErrReadOnly", err)
	}
	if diff := cmp.Diff(before, s.BuiltIn()); diff != "" {
		t.Errorf("built-in books changed (-before +after):\n%s", diff)
	}
	if len(saver.saves) != 0 {
		t.Error("rejected operations should not persist")
	}
}

func TestBuiltInNormalized(t *testing.T) {
	s := New(nil, nil)
	s.AppendBuiltIn(book.Book{ID: "builtin-x", Password: "secret"})
	got := s.BuiltIn()[0]
	if !got.BuiltIn || got.Password != "" {
		t.Errorf("AppendBuiltIn = %+v", got)
	}
}

func TestReturnedBooksAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New(nil, nil)
	created := s.Add(ctx, book.Book{Chapters: []book.Chapter{{ID: 1, Title: "orig"}}})

	all := s.All()
	all[0].Chapters[0].Title = "mutated"

	got, _ := s.Find(created.ID)
	if got.Chapters[0].Title != "orig" {
		t.Error("caller mutation leaked into the store")
	}
}

func TestNewSeedsUserBooks(t *testing.T) {
	seed := []book.Book{{ID: "u1", Title: "Saved", BuiltIn: true}}
	s := New(seed, nil)
	got := s.User()
	want := []book.Book{{ID: "u1", Title: "Saved"}}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("User() mismatch (-want +got):\n%s", diff)
	}
}
