package fu

import (
	"os"
	"path/filepath"

	"go-ml.dev/pkg/iokit"
)

/*
ModelPath resolves a model artifact name. Absolute paths and names existing
relative to the working directory are used as is, anything else is looked up
in the models cache.
*/
func ModelPath(s string) string {
	if filepath.IsAbs(s) {
		return s
	}
	if _, err := os.Stat(s); err == nil {
		return s
	}
	return iokit.CacheFile(filepath.Join("go-ml", "Models", s))
}
