package domain

import "errors"

// Error kinds returned by the store. Callers match them with errors.Is.
var (
	ErrValidation = errors.New("text is required")
	ErrNotFound   = errors.New("item not found")
	ErrStorage    = errors.New("storage failure")
)

// StorageError wraps an unexpected failure from the underlying database.
// Its message is the raw driver message so it can be surfaced as-is.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is reports ErrStorage for every StorageError.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }
