// Package filter provides filtering, sorting and limiting of archive
// listings. It supports glob patterns, a files-only switch, size and depth
// bounds, and configurable sorting and limits.
package filter

import (
	"errors"
	"fmt"
	"strings"
)

// SortField specifies the field to sort entries by.
type SortField int

const (
	// SortNone keeps container order.
	SortNone SortField = iota
	// SortPath sorts entries by path.
	SortPath
	// SortName sorts entries by final path element.
	SortName
	// SortSize sorts entries by uncompressed size.
	SortSize
	// SortTime sorts entries by modification time.
	SortTime
)

// Sort field string constants.
const (
	sortFieldNone = "none"
	sortFieldPath = "path"
	sortFieldName = "name"
	sortFieldSize = "size"
	sortFieldTime = "time"
)

// String returns the string representation of the sort field.
func (s SortField) String() string {
	switch s {
	case SortPath:
		return sortFieldPath
	case SortName:
		return sortFieldName
	case SortSize:
		return sortFieldSize
	case SortTime:
		return sortFieldTime
	default:
		return sortFieldNone
	}
}

var (
	// ErrInvalidSortField indicates that the sort field string could not be parsed.
	ErrInvalidSortField = errors.New("invalid sort field")

	// ErrInvalidPattern indicates a glob pattern that does not compile.
	ErrInvalidPattern = errors.New("invalid pattern")
)

// ParseSortField parses "none", "path", "name", "size" or "time"
// (case-insensitive). The empty string means SortNone.
func ParseSortField(s string) (SortField, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case sortFieldNone, "":
		return SortNone, nil
	case sortFieldPath:
		return SortPath, nil
	case sortFieldName:
		return SortName, nil
	case sortFieldSize:
		return SortSize, nil
	case sortFieldTime, "mtime", "modified":
		return SortTime, nil
	default:
		return SortNone, fmt.Errorf("%w: %q", ErrInvalidSortField, s)
	}
}

// SortFields returns the names accepted by ParseSortField.
func SortFields() []string {
	return []string{sortFieldNone, sortFieldPath, sortFieldName, sortFieldSize, sortFieldTime}
}
