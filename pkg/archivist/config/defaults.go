// Package config provides configuration management for archivist.
package config

// Default configuration values for archivist.
const (
	// DefaultFormat is the archive format used by create when the
	// destination has no recognised extension.
	DefaultFormat = "zip"

	// DefaultLevel is the compression level, 0 (fastest) to 9 (smallest).
	DefaultLevel = 6

	// DefaultZipMethod is the ZIP compression method.
	DefaultZipMethod = "lzma"

	// DefaultDestination is where extract writes when no destination is
	// given.
	DefaultDestination = "."

	// DefaultOutput is the listing formatter.
	DefaultOutput = "pretty"

	// DefaultLogMaxSize is the log size that triggers rotation.
	DefaultLogMaxSize = "10MB"
)

// DefaultComponentLevels are the per-component log levels.
var DefaultComponentLevels = map[string]string{
	"engine":    "info",
	"runner":    "info",
	"container": "info",
	"cli":       "info",
	"tui":       "info",
}
