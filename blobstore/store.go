// Package blobstore abstracts byte-blob persistence behind one small
// interface so session blobs, credentials and mirrored media can go to local
// disk, Google Drive, or any S3-compatible bucket interchangeably.
package blobstore

import "context"

// Store is the persistence contract. Get reports absence instead of erroring
// so callers can treat "never stored" and "stored then lost" identically.
type Store interface {
	// Put fully replaces any prior blob under key (last writer wins).
	Put(ctx context.Context, key string, data []byte) error
	// Get returns the blob and true, or (nil, false, nil) when absent.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Delete removes the blob; deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// List returns all keys with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
