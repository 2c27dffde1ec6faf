package export

import (
	"countyrecorder/internal/components/fsutil"
	"encoding/csv"
	"errors"

	"github.com/spf13/afero"
)

// ResultsFilename is the name of the csv export inside the output directory.
const ResultsFilename = "search_results.csv"

// CSVSink writes a csv file that only replaces the previous one once Close
// succeeds.
type CSVSink struct {
	file   *fsutil.AtomicFile
	writer *csv.Writer
}

func NewCSVSink(fs afero.Fs, path string) (*CSVSink, error) {
	file, err := fsutil.CreateAtomic(fs, path)
	if err != nil {
		return nil, err
	}
	return &CSVSink{file: file, writer: csv.NewWriter(file)}, nil
}

func (s *CSVSink) WriteHeader(columns []string) error {
	return s.writer.Write(columns)
}

func (s *CSVSink) WriteRow(fields []string) error {
	return s.writer.Write(fields)
}

func (s *CSVSink) Close() error {
	s.writer.Flush()
	err := s.writer.Error()
	if err != nil {
		return errors.Join(err, s.file.Discard())
	}
	return s.file.Commit()
}

func (s *CSVSink) Discard() error {
	return s.file.Discard()
}
