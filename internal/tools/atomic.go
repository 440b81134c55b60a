package tools

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// WriteFileAtomic writes data to path via a sibling temp file and rename, so
// a crash mid-write leaves the original file byte-for-byte unchanged. On
// filesystems where rename-over-existing fails, the target is removed first;
// that narrow non-atomic window is a known limitation on such systems.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}

	if err = os.Rename(tmpName, path); err != nil {
		if errors.Is(err, os.ErrExist) || os.IsExist(err) {
			if rmErr := os.Remove(path); rmErr != nil {
				return fmt.Errorf("remove existing target: %w", rmErr)
			}
			if err = os.Rename(tmpName, path); err != nil {
				return fmt.Errorf("rename temp file: %w", err)
			}
			return nil
		}
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
