package domain

import (
	"errors"
	"fmt"
)

var (
	ErrWorkspaceNotFound  = errors.New("workspace not found")
	ErrCollectionNotFound = errors.New("collection not found")
	ErrCollectionExists   = errors.New("collection already exists")
	ErrStoreUnavailable   = errors.New("vector store unavailable")
	ErrTransientStore     = errors.New("transient vector store error")
	ErrEmbedding          = errors.New("embedding failed")
	ErrExtraction         = errors.New("extraction failed")
	ErrConfiguration      = errors.New("configuration error")
)

// DimensionMismatchError reports a collection whose vector size differs from
// the embedding provider's. It is never repaired automatically.
type DimensionMismatchError struct {
	Collection string
	Existing   int
	Requested  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("collection %q has vector size %d, embedding provider produces %d (run `dupguard reset` to rebuild)",
		e.Collection, e.Existing, e.Requested)
}

func (e *DimensionMismatchError) Unwrap() error {
	return ErrConfiguration
}

// DistanceMismatchError reports a collection created with another metric.
type DistanceMismatchError struct {
	Collection string
	Existing   Distance
	Requested  Distance
}

func (e *DistanceMismatchError) Error() string {
	return fmt.Sprintf("collection %q uses %s distance, %s requested (run `dupguard reset` to rebuild)",
		e.Collection, e.Existing, e.Requested)
}

func (e *DistanceMismatchError) Unwrap() error {
	return ErrConfiguration
}

// StoreUnavailableError is returned once retries against the vector store
// are exhausted.
type StoreUnavailableError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("vector store unavailable: %s failed after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *StoreUnavailableError) Unwrap() []error {
	return []error{ErrStoreUnavailable, e.Err}
}

func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

func IsCollectionNotFound(err error) bool {
	return errors.Is(err, ErrCollectionNotFound)
}

func IsWorkspaceNotFound(err error) bool {
	return errors.Is(err, ErrWorkspaceNotFound)
}
