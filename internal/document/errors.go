package document

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation failed")
	ErrStaleWrite = errors.New("stale write")
)

// StaleWriteError is returned when a content write was based on an older
// sequence than the stored one. Current is the document as stored.
type StaleWriteError struct {
	BaseSeq int64
	Current *Document
}

func (e *StaleWriteError) Error() string {
	cur := int64(0)
	if e.Current != nil {
		cur = e.Current.Seq
	}
	return fmt.Sprintf("stale write: base seq %d, current seq %d", e.BaseSeq, cur)
}

func (e *StaleWriteError) Unwrap() error { return ErrStaleWrite }

// NotFound builds an ErrNotFound wrapping error naming the missing entity.
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}
