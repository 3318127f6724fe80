package container

import (
	"errors"
	"fmt"
)

// ErrEntryNotFound is returned when a named entry is absent from the
// archive. Callers decide whether the entry was optional.
var ErrEntryNotFound = errors.New("archive entry not found")

// FormatError reports a corrupt or unacceptable container: a broken central
// directory, a non-ZIP file, or an entry name that would escape the
// extraction root.
type FormatError struct {
	Path string
	Err  error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid archive %s: %v", e.Path, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// LimitError reports an entry whose declared or actual size exceeds the
// configured ceiling, before the entry is fully extracted.
type LimitError struct {
	Entry string
	Size  uint64
	Limit uint64
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("entry %s exceeds size limit: %d > %d bytes", e.Entry, e.Size, e.Limit)
}
