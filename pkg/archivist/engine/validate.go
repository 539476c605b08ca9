package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jamesainslie/archivist/pkg/archivist/container/zip"
	"github.com/jamesainslie/archivist/pkg/archivist/detect"
	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{types.ErrInvalidRequest}, args...)...)
}

// Validate checks a request without starting it. Format detection for
// extraction happens here too, so unsupported archives are rejected
// before any work is queued.
func (e *Engine) Validate(req Request) error {
	switch req.Kind {
	case KindExtract:
		if req.Extract == nil || req.Create != nil {
			return invalid("extract request must carry exactly the extract payload")
		}
		return e.validateExtract(req.Extract)
	case KindCreate:
		if req.Create == nil || req.Extract != nil {
			return invalid("create request must carry exactly the create payload")
		}
		_, _, err := e.validateCreate(req.Create)
		return err
	}
	return invalid("unknown request kind %s", req.Kind)
}

func (e *Engine) validateExtract(r *ExtractRequest) error {
	if r.Archive == "" {
		return invalid("no archive given")
	}
	if r.Dest == "" {
		return invalid("no destination given")
	}
	info, err := os.Stat(r.Archive)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrIO, err)
	}
	if info.IsDir() {
		return invalid("%s is a directory", r.Archive)
	}
	if fi, err := os.Stat(r.Dest); err == nil && !fi.IsDir() {
		return invalid("destination %s is not a directory", r.Dest)
	}
	_, _, err = detect.Sniff(r.Archive)
	return err
}

// validateCreate checks a create request and resolves its format.
func (e *Engine) validateCreate(r *CreateRequest) (types.Format, types.Compression, error) {
	none := types.CompressionNone
	if r.Dest == "" {
		return types.FormatUnknown, none, invalid("no destination given")
	}
	if len(r.Sources) == 0 {
		return types.FormatUnknown, none, invalid("no sources given")
	}
	for _, src := range r.Sources {
		if _, err := os.Lstat(src); err != nil {
			return types.FormatUnknown, none, invalid("source %s: %w", src, err)
		}
	}
	if fi, err := os.Stat(r.Dest); err == nil && fi.IsDir() {
		return types.FormatUnknown, none, invalid("destination %s is a directory", r.Dest)
	}
	parent := filepath.Dir(r.Dest)
	if fi, err := os.Stat(parent); err != nil || !fi.IsDir() {
		return types.FormatUnknown, none, invalid("destination directory %s does not exist", parent)
	}
	if r.Level != DefaultLevel && (r.Level < 0 || r.Level > 9) {
		return types.FormatUnknown, none, invalid("compression level %d outside 0-9", r.Level)
	}

	format, compression, err := resolveFormat(r)
	if err != nil {
		return types.FormatUnknown, none, err
	}
	switch format {
	case types.FormatRar:
		return format, compression, fmt.Errorf("%w: rar archives cannot be written", types.ErrUnsupportedFormat)
	case types.FormatTar:
		if r.Password.IsSet() {
			return format, compression, invalid("tar archives cannot be encrypted")
		}
	case types.FormatZip:
		if _, err := zip.ParseMethod(r.Method); err != nil {
			return format, compression, err
		}
	}
	return format, compression, nil
}

// resolveFormat takes the explicit format when set and the destination
// extension otherwise. An explicit tar format without a compression takes
// the compression from the extension when it names one.
func resolveFormat(r *CreateRequest) (types.Format, types.Compression, error) {
	extFormat, extCompression, extErr := detect.FromExtension(r.Dest)
	switch {
	case r.Format == types.FormatUnknown:
		return extFormat, extCompression, extErr
	case r.Format == types.FormatTar && r.Compression == types.CompressionNone && extErr == nil && extFormat == types.FormatTar:
		return r.Format, extCompression, nil
	case r.Format == types.FormatTar:
		return r.Format, r.Compression, nil
	}
	return r.Format, types.CompressionNone, nil
}
