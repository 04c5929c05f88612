package file

import (
	"errors"
	"io/fs"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads dir/.env into the process environment. Variables that
// are already set win over the file. A missing file is not an error.
func LoadDotEnv(dir string) error {
	err := godotenv.Load(filepath.Join(dir, ".env"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
