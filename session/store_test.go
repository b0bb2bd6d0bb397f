package session

import (
	"context"
	"errors"
	"testing"

	"github.com/mojtba-allam/my-insta-bot/blobstore"
)

// flakyStore wraps a Store and fails selected operations.
type flakyStore struct {
	blobstore.Store
	failPut bool
	failGet bool
}

func (f *flakyStore) Put(ctx context.Context, key string, data []byte) error {
	if f.failPut {
		return errors.New("remote unavailable")
	}
	return f.Store.Put(ctx, key, data)
}

func (f *flakyStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if f.failGet {
		return nil, false, errors.New("remote unavailable")
	}
	return f.Store.Get(ctx, key)
}

func newLocal(t *testing.T) *blobstore.Local {
	t.Helper()
	l, err := blobstore.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	return l
}

func TestSaveWritesRemoteAndLocal(t *testing.T) {
	local, remote := newLocal(t), newLocal(t)
	s := New(local, remote)
	ctx := context.Background()

	if err := s.Save(ctx, "acct1", []byte("blob")); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	for name, st := range map[string]blobstore.Store{"local": local, "remote": remote} {
		data, ok, err := st.Get(ctx, "sessions/acct1.json")
		if err != nil || !ok || string(data) != "blob" {
			t.Errorf("%s copy = (%q, %v, %v), want blob", name, data, ok, err)
		}
	}
}

func TestSaveFailsWhenRemoteFails(t *testing.T) {
	local, remote := newLocal(t), newLocal(t)
	s := New(local, &flakyStore{Store: remote, failPut: true})
	if err := s.Save(context.Background(), "acct1", []byte("blob")); err == nil {
		t.Error("expected error when the remote write fails")
	}
}

func TestLoadFallsBackToLocal(t *testing.T) {
	local, remote := newLocal(t), newLocal(t)
	ctx := context.Background()
	if err := local.Put(ctx, "sessions/acct1.json", []byte("cached")); err != nil {
		t.Fatal(err)
	}
	s := New(local, &flakyStore{Store: remote, failGet: true})
	data, ok := s.Load(ctx, "acct1")
	if !ok || string(data) != "cached" {
		t.Errorf("Load = (%q, %v), want cached copy", data, ok)
	}
}

func TestLoadPrefersRemote(t *testing.T) {
	local, remote := newLocal(t), newLocal(t)
	ctx := context.Background()
	if err := local.Put(ctx, "sessions/acct1.json", []byte("stale")); err != nil {
		t.Fatal(err)
	}
	if err := remote.Put(ctx, "sessions/acct1.json", []byte("fresh")); err != nil {
		t.Fatal(err)
	}
	s := New(local, remote)
	data, ok := s.Load(ctx, "acct1")
	if !ok || string(data) != "fresh" {
		t.Errorf("Load = (%q, %v), want remote copy", data, ok)
	}
}

func TestLoadAbsent(t *testing.T) {
	s := New(newLocal(t), nil)
	if _, ok := s.Load(context.Background(), "nobody"); ok {
		t.Error("Load reported a session that was never saved")
	}
}

func TestDeleteRemovesBothCopies(t *testing.T) {
	local, remote := newLocal(t), newLocal(t)
	ctx := context.Background()
	s := New(local, remote)
	if err := s.Save(ctx, "acct1", []byte("blob")); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "acct1"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, ok := s.Load(ctx, "acct1"); ok {
		t.Error("session still present after delete")
	}
}
