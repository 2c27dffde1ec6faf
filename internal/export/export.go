package export

import (
	"countyrecorder/internal/scrapers/recorder"
	"errors"
	"fmt"
)

// Columns is the header of every export.
var Columns = []string{
	"Item#",
	"Document ID#",
	"Recording Date",
	"Document Type",
	"Document Name",
	"Name Type",
	"Document",
	"Page Count",
}

// Sink is a tabular destination. Close finalizes it, a sink always replaces
// whatever a previous run left behind.
type Sink interface {
	WriteHeader(columns []string) error
	WriteRow(fields []string) error
	Close() error
}

// discarder sinks can throw away a half written export.
type discarder interface {
	Discard() error
}

// Discard abandons sinks that are not going to be written, the ones that
// hold partial output throw it away.
func Discard(sinks ...Sink) error {
	var errs []error
	for _, sink := range sinks {
		if d, ok := sink.(discarder); ok {
			errs = append(errs, d.Discard())
		}
	}
	return errors.Join(errs...)
}

// Row is the export row of a record.
func Row(r recorder.ResultRecord) []string {
	return []string{
		r.ItemNumber,
		r.DocumentId,
		r.RecordingDateText,
		r.DocumentType,
		r.DocumentName,
		r.NameType,
		r.LinkText(),
		r.PageCount.String(),
	}
}

// Write writes the header and one row per record, in order, then closes the sink.
func Write(records []recorder.ResultRecord, sink Sink) error {
	fail := func(err error) error {
		if d, ok := sink.(discarder); ok {
			err = errors.Join(err, d.Discard())
		}
		return fmt.Errorf("export: %w", err)
	}

	err := sink.WriteHeader(Columns)
	if err != nil {
		return fail(err)
	}
	for _, r := range records {
		err = sink.WriteRow(Row(r))
		if err != nil {
			return fail(fmt.Errorf("record %s: %w", r.DocumentId, err))
		}
	}
	err = sink.Close()
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}
