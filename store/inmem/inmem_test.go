package inmem

import (
	"testing"

	"github.com/imagevault/imagevault/store"
)

func TestStore_GetAbsent(t *testing.T) {
	s := New()
	if _, err := s.Get("nope"); err != store.ErrNotFound {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestStore_SetGet(t *testing.T) {
	s := New()
	if err := s.Set("k", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	if err := s.Set("k", []byte("v2")); err != nil {
		t.Fatal(err)
	}
	v, err := s.Get("k")
	if err != nil {
		t.Fatal(err)
	}
	if string(v) != "v2" {
		t.Fatalf("Expected %q, got %q", "v2", string(v))
	}
}

func TestStore_SetNX(t *testing.T) {
	s := New()
	inserted, err := s.SetNX("k", []byte("first"))
	if err != nil {
		t.Fatal(err)
	}
	if !inserted {
		t.Fatal("Expected insert of absent key to succeed")
	}

	inserted, err = s.SetNX("k", []byte("second"))
	if err != nil {
		t.Fatal(err)
	}
	if inserted {
		t.Fatal("Expected insert of existing key to report existing")
	}

	// The existing row must be left untouched.
	v, err := s.Get("k")
	if err != nil {
		t.Fatal(err)
	}
	if string(v) != "first" {
		t.Fatalf("Expected stored value unchanged, got %q", string(v))
	}
}

func TestStore_Delete(t *testing.T) {
	s := New()
	// Deleting a non-existent key, and nothing at all, are no-ops.
	if err := s.Delete("nope"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(); err != nil {
		t.Fatal(err)
	}

	s.Set("a", []byte("1"))
	s.Set("b", []byte("2"))
	if err := s.Delete("a", "b", "c"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get("a"); err != store.ErrNotFound {
		t.Fatalf("Expected ErrNotFound after delete, got %v", err)
	}
	if _, err := s.Get("b"); err != store.ErrNotFound {
		t.Fatalf("Expected ErrNotFound after delete, got %v", err)
	}
}
