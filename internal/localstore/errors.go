package localstore

import "errors"

var (
	ErrNotFound = errors.New("pending sale not found")
	ErrClosed   = errors.New("local store closed")
)

// StorageError wraps any failure of the local storage engine.
// Callers treat the operation as not having happened.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "local store: " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// storageErr wraps err as a StorageError unless it is nil or already a
// store-level sentinel.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return err
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsStorageError reports whether err originated in the local store engine.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
