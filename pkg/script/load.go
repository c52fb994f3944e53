package script

import (
	"io"
	"io/fs"
	"os"

	"github.com/pkg/errors"
)

// Load reads a whole script from r and splits it.
func Load(r io.Reader, opts Options) ([]Statement, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read script")
	}

	return SplitWithOptions(string(data), opts), nil
}

// LoadFile reads and splits the script at path.
//
// Example:
//
//	stmts, err := script.LoadFile("sql/warehouse/schema.sql", script.Options{})
//	if err != nil {
//		return err
//	}
func LoadFile(path string, opts Options) ([]Statement, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open script: %s", path)
	}
	defer func() { _ = f.Close() }()

	stmts, err := Load(f, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load script: %s", path)
	}

	return stmts, nil
}

// LoadFS reads and splits the named script from fsys.
func LoadFS(fsys fs.FS, name string, opts Options) ([]Statement, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read script: %s", name)
	}

	return SplitWithOptions(string(data), opts), nil
}
