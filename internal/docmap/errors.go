package docmap

import (
	"errors"
	"fmt"
)

// NotFoundError reports an unknown document, anchor, page or reference id.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("unknown %s: %s", e.Kind, e.ID)
}

func notFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// IsNotFound reports whether err wraps a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ErrInvalidArgument is returned for malformed lookups such as an empty
// request or a reversed page range.
var ErrInvalidArgument = errors.New("invalid argument")
