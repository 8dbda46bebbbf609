package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the two terminal lookup outcomes. Callers must be able
// to tell them apart: a missing resource maps to 404, an existing resource the
// caller may not see maps to 403.
var (
	ErrNotFound  = errors.New("resource not found")
	ErrForbidden = errors.New("access forbidden")
)

// StructuralError reports a malformed content tree discovered during
// traversal: a cycle, a depth past the configured bound, or a parent reference
// that cannot resolve. It signals data corruption, not a client mistake.
type StructuralError struct {
	PageID    int64
	ElementID int64
	Reason    string
}

func (e *StructuralError) Error() string {
	if e.ElementID != 0 {
		return fmt.Sprintf("structural integrity violation on page %d at element %d: %s", e.PageID, e.ElementID, e.Reason)
	}
	return fmt.Sprintf("structural integrity violation on page %d: %s", e.PageID, e.Reason)
}
