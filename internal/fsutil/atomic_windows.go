//go:build windows

package fsutil

import (
	"os"
)

// renameio does not support Windows; a same-volume rename is the closest match.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tempFile := path + ".tmp"
	if err := os.WriteFile(tempFile, data, perm); err != nil {
		return err
	}
	if err := os.Rename(tempFile, path); err != nil {
		_ = os.Remove(tempFile)
		return err
	}
	return nil
}
