package session

import "errors"

// Sentinel errors for store operations, checked with errors.Is().
var (
	// ErrNotFound indicates the requested session does not exist.
	ErrNotFound = errors.New("session not found")

	// ErrDimensionMismatch indicates an embedding vector whose length does
	// not match the store's configured dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
