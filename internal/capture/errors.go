package capture

import (
	"errors"
	"fmt"
)

var (
	// ErrCaptureNotFound is matched by every *CaptureNotFoundError via errors.Is.
	ErrCaptureNotFound = errors.New("capture not found")

	// ErrCaptureFormat is matched by every *CaptureFormatError via errors.Is.
	ErrCaptureFormat = errors.New("invalid capture format")

	// ErrUnknownFormat is returned when the input starts with no known capture magic.
	ErrUnknownFormat = errors.New("not a recognized pcap or pcapng file")

	// ErrUnsupportedLinkType is returned for link layers that cannot carry IP frames
	// the decoder understands.
	ErrUnsupportedLinkType = errors.New("unsupported link type")

	// ErrBinaryFieldExport is returned when a binary capture is given as a field export.
	ErrBinaryFieldExport = errors.New("input is a binary capture, not a field export")
)

// CaptureNotFoundError is returned when the capture source is missing or unreadable.
type CaptureNotFoundError struct {
	// Path is the capture path, or "-" for a stream.
	Path string

	// Err is the underlying I/O error.
	Err error
}

// Error implements error.
func (e *CaptureNotFoundError) Error() string {
	return fmt.Sprintf("cannot read capture %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying I/O error.
func (e *CaptureNotFoundError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrCaptureNotFound.
func (e *CaptureNotFoundError) Is(target error) bool {
	return target == ErrCaptureNotFound
}

// CaptureFormatError is returned when the capture's global header is invalid
// or the container format is not recognized.
type CaptureFormatError struct {
	// Path is the capture path, or empty when parsing raw bytes.
	Path string

	// Err is the underlying cause.
	Err error
}

// Error implements error.
func (e *CaptureFormatError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid capture: %v", e.Err)
	}
	return fmt.Sprintf("invalid capture %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying cause.
func (e *CaptureFormatError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrCaptureFormat.
func (e *CaptureFormatError) Is(target error) bool {
	return target == ErrCaptureFormat
}
