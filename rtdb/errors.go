package rtdb

import "github.com/pkg/errors"

var (
	// ErrInvalidPath is returned for paths containing empty or illegal keys.
	ErrInvalidPath = errors.New("invalid path")
	// ErrClosed is returned by drivers after Close has been called.
	ErrClosed = errors.New("database closed")
	// ErrOverlappingUpdate is returned when one path of a multi-path update
	// is an ancestor of another.
	ErrOverlappingUpdate = errors.New("overlapping update paths")
)
