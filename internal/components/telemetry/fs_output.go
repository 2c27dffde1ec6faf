package telemetry

import (
	"log/slog"
	"path/filepath"

	"github.com/spf13/afero"
)

// FilesystemOutput writes each http message into its own file under a directory.
type FilesystemOutput struct {
	fs        afero.Fs
	directory string
}

// NewFilesystemOutput clears `dir` and recreates it.
func NewFilesystemOutput(fs afero.Fs, dir string) (FilesystemOutput, error) {
	err := fs.RemoveAll(dir)
	if err != nil {
		return FilesystemOutput{}, err
	}
	err = fs.MkdirAll(dir, 0o755)
	if err != nil {
		return FilesystemOutput{}, err
	}
	return FilesystemOutput{fs: fs, directory: dir}, nil
}

func (o FilesystemOutput) Write(id string, contents string) {
	err := afero.WriteFile(o.fs, filepath.Join(o.directory, id+".txt"), []byte(contents), 0o600)
	if err != nil {
		slog.Warn("failed to write message info file", "id", id, "err", err)
	}
}
