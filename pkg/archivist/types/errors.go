package types

import (
	"errors"
)

// Error kinds. Every error returned by archivist wraps exactly one of these,
// so callers can branch with errors.Is.
var (
	// ErrUnsupportedFormat indicates an unknown or unwritable archive format.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrPasswordRequired indicates encrypted content and no password.
	ErrPasswordRequired = errors.New("password required")

	// ErrIncorrectPassword indicates that the supplied password failed
	// verification or produced undecodable content.
	ErrIncorrectPassword = errors.New("incorrect password")

	// ErrCorruptArchive indicates a malformed container, checksum mismatch
	// or truncated stream.
	ErrCorruptArchive = errors.New("corrupt archive")

	// ErrPathTraversal indicates an entry path that would resolve outside
	// the extraction destination.
	ErrPathTraversal = errors.New("path traversal")

	// ErrIO indicates a filesystem failure.
	ErrIO = errors.New("i/o error")

	// ErrCancelled indicates that the operation was cancelled.
	ErrCancelled = errors.New("cancelled")

	// ErrInvalidRequest indicates a malformed operation request.
	ErrInvalidRequest = errors.New("invalid request")
)

var kinds = []error{
	ErrCancelled,
	ErrPasswordRequired,
	ErrIncorrectPassword,
	ErrPathTraversal,
	ErrUnsupportedFormat,
	ErrInvalidRequest,
	ErrCorruptArchive,
	ErrIO,
}

// KindOf returns the error kind sentinel wrapped by err, or nil when err
// carries none.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// IsPasswordError reports whether err asks the caller for a (new) password.
func IsPasswordError(err error) bool {
	return errors.Is(err, ErrPasswordRequired) || errors.Is(err, ErrIncorrectPassword)
}
