package cache

import (
	"errors"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"
)

// FileSystem is the subset of filesystem operations the disk tier needs.
type FileSystem interface {
	// Exists reports whether path exists.
	Exists(path string) bool

	// MkdirAll creates path and any missing parents.
	MkdirAll(path string) error

	// ReadFile returns the contents of path.
	ReadFile(path string) ([]byte, error)

	// WriteFileAtomic replaces path with data. Readers observe either the
	// old or the new contents, never a partial write.
	WriteFileAtomic(path string, data []byte) error

	// Remove deletes path. A missing file is not an error.
	Remove(path string) error

	// ReadDir returns the names of the regular files in dir.
	ReadDir(dir string) ([]string, error)

	// Usage returns the total size in bytes of the regular files in dir.
	Usage(dir string) (int64, error)
}

// NewFileSystem adapts an afero filesystem. A nil fs uses the OS filesystem.
func NewFileSystem(fsys afero.Fs) FileSystem {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &aferoFS{fs: fsys}
}

type aferoFS struct {
	fs afero.Fs
}

func (a *aferoFS) Exists(path string) bool {
	ok, err := afero.Exists(a.fs, path)
	return err == nil && ok
}

func (a *aferoFS) MkdirAll(path string) error {
	return a.fs.MkdirAll(path, 0o755)
}

func (a *aferoFS) ReadFile(path string) ([]byte, error) {
	return afero.ReadFile(a.fs, path)
}

func (a *aferoFS) WriteFileAtomic(path string, data []byte) error {
	// Write to a temp file in the same directory, then rename over the target.
	tmp, err := afero.TempFile(a.fs, filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	_, err = tmp.Write(data)
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = a.fs.Remove(tmpName)
		return err
	}

	if err := a.fs.Rename(tmpName, path); err != nil {
		_ = a.fs.Remove(tmpName)
		return err
	}
	return nil
}

func (a *aferoFS) Remove(path string) error {
	if err := a.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (a *aferoFS) ReadDir(dir string) ([]string, error) {
	infos, err := afero.ReadDir(a.fs, dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.Mode().IsRegular() {
			names = append(names, info.Name())
		}
	}
	return names, nil
}

func (a *aferoFS) Usage(dir string) (int64, error) {
	infos, err := afero.ReadDir(a.fs, dir)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, info := range infos {
		if info.Mode().IsRegular() {
			total += info.Size()
		}
	}
	return total, nil
}
