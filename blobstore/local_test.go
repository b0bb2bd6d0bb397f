package blobstore

import (
	"context"
	"testing"
)

func TestLocalRoundTrip(t *testing.T) {
	s, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	ctx := context.Background()

	if err := s.Put(ctx, "sessions/acct1.json", []byte("blob")); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	data, ok, err := s.Get(ctx, "sessions/acct1.json")
	if err != nil || !ok {
		t.Fatalf("Get = (%v, %v)", ok, err)
	}
	if string(data) != "blob" {
		t.Errorf("Get data = %q", data)
	}

	if err := s.Delete(ctx, "sessions/acct1.json"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "sessions/acct1.json"); ok {
		t.Error("key still present after delete")
	}
	// Deleting again is not an error.
	if err := s.Delete(ctx, "sessions/acct1.json"); err != nil {
		t.Errorf("repeat Delete error: %v", err)
	}
}

func TestLocalGetAbsent(t *testing.T) {
	s, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	data, ok, err := s.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("absent Get error: %v", err)
	}
	if ok || data != nil {
		t.Errorf("absent Get = (%q, %v), want (nil, false)", data, ok)
	}
}

func TestLocalRejectsTraversal(t *testing.T) {
	s, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for _, key := range []string{"../escape", "/abs/path", "a/../../b"} {
		if err := s.Put(ctx, key, []byte("x")); err == nil {
			t.Errorf("Put(%q) accepted a traversal key", key)
		}
	}
}

func TestLocalList(t *testing.T) {
	s, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for _, key := range []string{"sessions/a.json", "sessions/b.json", "media/c.jpg"} {
		if err := s.Put(ctx, key, []byte("x")); err != nil {
			t.Fatal(err)
		}
	}
	keys, err := s.List(ctx, "sessions/")
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("List = %v, want 2 session keys", keys)
	}
}
