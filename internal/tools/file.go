package tools

import (
	"errors"
	"io/fs"
	"os"
)

// FileExists reports whether filename can be stated. Errors other than
// not-exist count as existing so callers surface them on open.
func FileExists(filename string) bool {
	_, err := os.Stat(filename)
	return !errors.Is(err, fs.ErrNotExist)
}
