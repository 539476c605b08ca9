package container

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

// CreateFile writes an archive through a temporary file in the destination
// directory and renames it into place once write succeeds. On failure the
// temporary file is removed and dest is left untouched.
func CreateFile(dest string, write func(f *os.File) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", types.ErrIO, dest, err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = write(tmp); err != nil {
		return err
	}
	if err = tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("%w: chmod %s: %w", types.ErrIO, dest, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", types.ErrIO, dest, err)
	}
	if err = os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("%w: rename %s: %w", types.ErrIO, dest, err)
	}
	return nil
}
