package ogn

import "errors"

var (
	// ErrUnsupportedFormat is returned when a file extension names no known codec.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrBadHeader is returned when a file header cannot be parsed.
	ErrBadHeader = errors.New("malformed header")

	// ErrShapeMismatch is returned when collaborating buffers or grids disagree in size.
	ErrShapeMismatch = errors.New("shape mismatch")
)
