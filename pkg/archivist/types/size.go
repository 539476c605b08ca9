package types

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// Binary (IEC) size units.
const (
	KiB int64 = 1024
	MiB int64 = 1024 * KiB
	GiB int64 = 1024 * MiB
	TiB int64 = 1024 * GiB
)

var sizePattern = regexp.MustCompile(`(?i)^\s*([0-9]+(?:\.[0-9]+)?)\s*([KMGT]?(?:i?B)?)\s*$`)

// ErrInvalidSize indicates that a size string could not be parsed.
var ErrInvalidSize = errors.New("invalid size format")

// ParseSize parses sizes such as "512", "100K", "50MiB" or "1.5GB" into bytes.
// Units are binary; decimals are truncated.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidSize)
	}

	m := sizePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	unit := strings.TrimSuffix(strings.TrimSuffix(strings.ToUpper(m[2]), "IB"), "B")
	mult := map[string]int64{"": 1, "K": KiB, "M": MiB, "G": GiB, "T": TiB}[unit]
	if mult == 0 {
		return 0, fmt.Errorf("%w: unknown suffix %q", ErrInvalidSize, unit)
	}
	return int64(value * float64(mult)), nil
}

// FormatSize renders a byte count using binary units, e.g. "1.5 MiB".
func FormatSize(n uint64) string {
	return humanize.IBytes(n)
}
