package blob

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	deletes []string
	err     error
}

func (s *countingStore) Get(context.Context, string) (*Object, error) { return nil, ErrNotFound }

func (s *countingStore) Delete(_ context.Context, key string) error {
	s.deletes = append(s.deletes, key)
	return s.err
}

func TestArtifact_DeletesOnceUnlessKept(t *testing.T) {
	store := &countingStore{}
	art := Acquire(store, "uploads/a.pdf", nil)

	require.NoError(t, art.Close(context.Background()))
	require.NoError(t, art.Close(context.Background()))

	assert.Equal(t, []string{"uploads/a.pdf"}, store.deletes)
}

func TestArtifact_KeepSkipsDelete(t *testing.T) {
	store := &countingStore{}
	art := Acquire(store, "uploads/a.pdf", nil)
	art.Keep()

	require.NoError(t, art.Close(context.Background()))
	assert.Empty(t, store.deletes)
}

func TestArtifact_CloseAfterCancel(t *testing.T) {
	store := &countingStore{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	art := Acquire(store, "k", nil)
	require.NoError(t, art.Close(ctx))
	assert.Len(t, store.deletes, 1)
}

func TestArtifact_DeleteErrorReturned(t *testing.T) {
	store := &countingStore{err: errors.New("access denied")}
	art := Acquire(store, "k", nil)

	assert.Error(t, art.Close(context.Background()))
}

func TestFSStore_RoundTrip(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "user-1/brochure.pdf", []byte("%PDF-1.7")))

	obj, err := store.Get(ctx, "user-1/brochure.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.7"), obj.Data)
	assert.Equal(t, "application/pdf", obj.ContentType)

	require.NoError(t, store.Delete(ctx, "user-1/brochure.pdf"))
	_, err = store.Get(ctx, "user-1/brochure.pdf")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, store.Delete(ctx, "user-1/brochure.pdf"), "deleting a missing blob is not an error")
}

func TestFSStore_RejectsTraversal(t *testing.T) {
	root := t.TempDir()
	store, err := NewFSStore(root)
	require.NoError(t, err)

	p, err := store.path("../../etc/passwd")
	require.NoError(t, err)
	assert.Contains(t, p, root)

	_, err = store.path("/")
	assert.Error(t, err)
}
