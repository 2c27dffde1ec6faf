// Package bundle assembles the page images of a document into a single pdf.
package bundle

import (
	"countyrecorder/internal/components/fsutil"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/spf13/afero"
)

var ErrNoPages = errors.New("no pages to bundle")

// Path is where the bundle of a document is written to.
func Path(dir, documentId string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_pages.pdf", documentId))
}

// Pages writes one pdf page per image, in the order given.
func Pages(fs afero.Fs, dir, documentId string, pages []string) (string, error) {
	if len(pages) == 0 {
		return "", ErrNoPages
	}

	images := make([]io.Reader, 0, len(pages))
	for _, p := range pages {
		f, err := fs.Open(p)
		if err != nil {
			return "", fmt.Errorf("open page %s: %w", p, err)
		}
		defer f.Close()
		images = append(images, f)
	}

	dest := Path(dir, documentId)
	out, err := fsutil.CreateAtomic(fs, dest)
	if err != nil {
		return "", err
	}
	err = api.ImportImages(nil, out, images, pdfcpu.DefaultImportConfig(), nil)
	if err != nil {
		out.Discard()
		return "", fmt.Errorf("import images: %w", err)
	}
	err = out.Commit()
	if err != nil {
		return "", err
	}
	return dest, nil
}
