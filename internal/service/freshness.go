package service

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// IsFresh reports whether dst exists and was modified no earlier than src.
func IsFresh(src, dst string) (bool, error) {
	dstInfo, err := os.Stat(dst)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat derivative: %w", err)
	}
	if !dstInfo.Mode().IsRegular() {
		return false, nil
	}

	srcInfo, err := os.Stat(src)
	if err != nil {
		return false, fmt.Errorf("stat source: %w", err)
	}

	return !dstInfo.ModTime().Before(srcInfo.ModTime()), nil
}
