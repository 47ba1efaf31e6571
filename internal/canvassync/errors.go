package canvassync

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrConflict is returned when a versioned save lost against a newer write.
	ErrConflict = errors.New("canvas was modified by another client")
	// ErrNoSuchItem is returned by mutations that address a missing image or text item.
	ErrNoSuchItem = errors.New("no such canvas item")
	// ErrBadFileURL is returned when an image URL carries no file key.
	ErrBadFileURL = errors.New("image url does not contain a file key")
)

// StatusError is a non-2xx response from the pool API.
type StatusError struct {
	Op      string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: http %d", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: http %d: %s", e.Op, e.Code, e.Message)
}

// Is makes a 409 response match ErrConflict.
func (e *StatusError) Is(target error) bool {
	return target == ErrConflict && e.Code == http.StatusConflict
}
