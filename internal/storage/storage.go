package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned by Get and Stat when the key does not exist.
var ErrNotFound = errors.New("object not found")

type ObjectInfo struct {
	Key      string
	Size     int64
	Modified time.Time
	ETag     string
}

// Storage persists manifests. Keys are slash separated and relative to the
// backend's root (a directory or a bucket prefix).
type Storage interface {
	Put(ctx context.Context, key string, reader io.Reader, size int64) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}
