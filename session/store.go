// Package session persists opaque authenticated-session blobs keyed by
// account id. Writes go to the durable remote backend first when one is
// configured; local disk is kept as a fallback cache, never the sole source
// of truth alongside a remote.
package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mojtba-allam/my-insta-bot/blobstore"
)

const keyPrefix = "sessions/"

// Store layers a required local backend with an optional remote one.
type Store struct {
	Local  blobstore.Store
	Remote blobstore.Store
}

// New builds a store. remote may be nil for local-only deployments.
func New(local, remote blobstore.Store) *Store {
	return &Store{Local: local, Remote: remote}
}

func key(accountID string) string {
	return keyPrefix + accountID + ".json"
}

// Save fully replaces the stored session for accountID. When a remote backend
// is configured its write must succeed; the local copy is refreshed best
// effort either way.
func (s *Store) Save(ctx context.Context, accountID string, blob []byte) error {
	if accountID == "" {
		return fmt.Errorf("empty account id")
	}
	k := key(accountID)
	if s.Remote != nil {
		if err := s.Remote.Put(ctx, k, blob); err != nil {
			return fmt.Errorf("save session remote: %w", err)
		}
		if err := s.Local.Put(ctx, k, blob); err != nil {
			slog.Warn("session local cache write failed", slog.String("account", accountID), slog.Any("err", err))
		}
		return nil
	}
	if err := s.Local.Put(ctx, k, blob); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Load returns the stored session blob, or (nil, false) when absent. A
// corrupted or unreadable entry is also reported absent: callers treat both
// identically to "never logged in".
func (s *Store) Load(ctx context.Context, accountID string) ([]byte, bool) {
	if accountID == "" {
		return nil, false
	}
	k := key(accountID)
	if s.Remote != nil {
		blob, ok, err := s.Remote.Get(ctx, k)
		if err != nil {
			slog.Warn("session remote load failed, trying local cache", slog.String("account", accountID), slog.Any("err", err))
		} else if ok {
			return blob, true
		}
	}
	blob, ok, err := s.Local.Get(ctx, k)
	if err != nil {
		slog.Warn("session local load failed", slog.String("account", accountID), slog.Any("err", err))
		return nil, false
	}
	return blob, ok
}

// Delete clears the stored session everywhere, best effort; the first error
// is returned after all backends have been attempted.
func (s *Store) Delete(ctx context.Context, accountID string) error {
	if accountID == "" {
		return nil
	}
	k := key(accountID)
	var firstErr error
	if s.Remote != nil {
		if err := s.Remote.Delete(ctx, k); err != nil {
			firstErr = err
		}
	}
	if err := s.Local.Delete(ctx, k); err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		return fmt.Errorf("delete session: %w", firstErr)
	}
	return nil
}
