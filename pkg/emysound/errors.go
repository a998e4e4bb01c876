package emysound

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPath is returned when a file source has no extractable
	// file name (empty path, root, "." or "..").
	ErrInvalidPath = errors.New("track path is invalid, can't extract the filename")

	// ErrInvalidArgument is returned for caller programming errors such as a
	// minimum confidence outside [0,1].
	ErrInvalidArgument = errors.New("invalid argument")
)

// IOError is a local file read failure.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("reading track file %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// TransportError is a network level failure talking to the service.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ServiceRejectedError is returned when the service answers with anything
// but 200. Body is the raw response text; it is never parsed.
type ServiceRejectedError struct {
	Op     string
	Status int
	Body   string
}

func (e *ServiceRejectedError) Error() string {
	return fmt.Sprintf("failed to %s track %d %s", e.Op, e.Status, e.Body)
}

// DecodeError is returned when a 200 response body does not match the
// expected schema.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode response body failed: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsCallerError reports whether err was caused by invalid input.
func IsCallerError(err error) bool {
	return errors.Is(err, ErrInvalidPath) || errors.Is(err, ErrInvalidArgument)
}

// IsEnvironmentError reports whether err came from the local file system or
// the network.
func IsEnvironmentError(err error) bool {
	var ioErr *IOError
	var transportErr *TransportError
	return errors.As(err, &ioErr) || errors.As(err, &transportErr)
}

// IsServiceError reports whether the service broke the expected contract,
// either by rejecting the request or by answering with an unexpected body.
func IsServiceError(err error) bool {
	var rejected *ServiceRejectedError
	var decodeErr *DecodeError
	return errors.As(err, &rejected) || errors.As(err, &decodeErr)
}
