// Package blob defines the source-document store the processing pipeline reads from and
// cleans up after.
package blob

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("blob not found")

// Object is a fetched source document.
type Object struct {
	Key         string
	Data        []byte
	ContentType string
}

// Store is the blob storage contract.
type Store interface {
	Get(ctx context.Context, key string) (*Object, error)
	Delete(ctx context.Context, key string) error
}

// Artifact is a scoped reference to a source document: it is deleted from the store when
// closed unless Keep was called first.
//
//	art := blob.Acquire(store, key, logger)
//	defer art.Close(ctx)
//	... // any early return deletes the artifact
//	art.Keep()
type Artifact struct {
	store  Store
	key    string
	logger *slog.Logger

	mu       sync.Mutex
	kept     bool
	released bool
}

// Acquire takes a reference to key in store.
func Acquire(store Store, key string, logger *slog.Logger) *Artifact {
	if logger == nil {
		logger = slog.Default()
	}
	return &Artifact{store: store, key: key, logger: logger}
}

// Key returns the artifact's key.
func (a *Artifact) Key() string { return a.key }

// Keep marks the artifact as successfully processed; Close will leave it in place.
func (a *Artifact) Keep() {
	a.mu.Lock()
	a.kept = true
	a.mu.Unlock()
}

// Close deletes the artifact unless it was kept. It deletes at most once and is safe to
// call repeatedly. Deletion failures are logged and returned.
func (a *Artifact) Close(ctx context.Context) error {
	a.mu.Lock()
	if a.kept || a.released {
		a.mu.Unlock()
		return nil
	}
	a.released = true
	a.mu.Unlock()

	// Cleanup must run even when the request context was cancelled.
	ctx = context.WithoutCancel(ctx)
	if err := a.store.Delete(ctx, a.key); err != nil {
		a.logger.Error("Failed to delete source document", "key", a.key, "error", err)
		return err
	}
	a.logger.Info("Deleted source document after failed processing", "key", a.key)
	return nil
}
