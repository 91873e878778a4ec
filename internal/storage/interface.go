package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Retrieve when the key holds no data
var ErrNotFound = errors.New("storage: key not found")

// StorageInterface defines the contract for storage operations
type StorageInterface interface {
	Store(ctx context.Context, key string, data []byte) error
	Retrieve(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
