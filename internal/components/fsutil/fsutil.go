package fsutil

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/afero"
)

// AtomicFile is written to a temporary file next to its destination and
// renamed over it on Commit, readers never see a partial file.
type AtomicFile struct {
	fs   afero.Fs
	tmp  afero.File
	dest string
	done bool
}

// CreateAtomic creates the parent directory of dest if needed.
func CreateAtomic(fs afero.Fs, dest string) (*AtomicFile, error) {
	dir := filepath.Dir(dest)
	err := fs.MkdirAll(dir, 0o755)
	if err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}
	tmp, err := afero.TempFile(fs, dir, "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return &AtomicFile{fs: fs, tmp: tmp, dest: dest}, nil
}

func (f *AtomicFile) Write(p []byte) (int, error) {
	return f.tmp.Write(p)
}

// Commit moves the written contents into place.
func (f *AtomicFile) Commit() error {
	if f.done {
		return nil
	}
	f.done = true

	err := f.tmp.Close()
	if err != nil {
		f.fs.Remove(f.tmp.Name())
		return err
	}
	err = f.fs.Rename(f.tmp.Name(), f.dest)
	if err != nil {
		f.fs.Remove(f.tmp.Name())
		return fmt.Errorf("rename into %s: %w", f.dest, err)
	}
	return nil
}

// Discard removes the temporary file, it is a no-op after Commit.
func (f *AtomicFile) Discard() error {
	if f.done {
		return nil
	}
	f.done = true
	return errors.Join(f.tmp.Close(), f.fs.Remove(f.tmp.Name()))
}

// WriteFileAtomic writes data to dest through an AtomicFile.
func WriteFileAtomic(fs afero.Fs, dest string, data io.Reader) error {
	f, err := CreateAtomic(fs, dest)
	if err != nil {
		return err
	}
	_, err = io.Copy(f, data)
	if err != nil {
		f.Discard()
		return fmt.Errorf("write %s: %w", dest, err)
	}
	return f.Commit()
}
