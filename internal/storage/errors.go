package storage

import "errors"

// Sentinel errors returned by QdrantStorage.
var (
	ErrQdrantUnreachable  = errors.New("qdrant server unreachable")
	ErrCollectionNotFound = errors.New("collection not found")
	// ErrDimensionMismatch means a vector's length differs from the collection's configured size.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrInvalidPayload    = errors.New("payload value cannot be stored")
)
