package recorder

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the MM-DD-YYYY layout the search form and the CLI use.
const DateLayout = "01-02-2006"

// recording dates come either with a time of day or without, the timed
// layout is tried first. Month and day may be unpadded.
var recordingDateLayouts = []string{
	"1-2-2006 3:04:05 PM",
	"1-2-2006",
}

func parseRecordingDate(text string) (time.Time, error) {
	// the meridiem is matched in upper case only
	normalized := strings.ToUpper(text)
	var err error
	for _, layout := range recordingDateLayouts {
		var parsed time.Time
		parsed, err = time.Parse(layout, normalized)
		if err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse recording date %q: %w", text, err)
}

// DateRange is inclusive on both ends, only the calendar date is compared.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// ParseDateRange parses two MM-DD-YYYY dates.
func ParseDateRange(start, end string) (DateRange, error) {
	startDate, err := time.Parse(DateLayout, start)
	if err != nil {
		return DateRange{}, fmt.Errorf("parse start date: %w", err)
	}
	endDate, err := time.Parse(DateLayout, end)
	if err != nil {
		return DateRange{}, fmt.Errorf("parse end date: %w", err)
	}
	if endDate.Before(startDate) {
		return DateRange{}, fmt.Errorf("end date %s is before start date %s", end, start)
	}
	return DateRange{Start: startDate, End: endDate}, nil
}

// TrailingRange covers the `days` calendar days that end on the date of now.
func TrailingRange(now time.Time, days int) (DateRange, error) {
	if days < 1 {
		return DateRange{}, fmt.Errorf("a trailing range needs at least one day, got %d", days)
	}
	end := truncateDate(now)
	return DateRange{Start: end.AddDate(0, 0, -(days - 1)), End: end}, nil
}

func truncateDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Contains reports whether the calendar date of t lies within the range.
func (r DateRange) Contains(t time.Time) bool {
	day := truncateDate(t)
	return !day.Before(truncateDate(r.Start)) && !day.After(truncateDate(r.End))
}

func (r DateRange) StartText() string {
	return r.Start.Format(DateLayout)
}

func (r DateRange) EndText() string {
	return r.End.Format(DateLayout)
}

// PageCount is the number of page images of a document, or nothing if the
// document has no viewable image set.
type PageCount struct {
	n  int
	ok bool
}

// Unavailable is the PageCount of a document without a viewable image set.
var Unavailable = PageCount{}

func Pages(n int) PageCount {
	if n <= 0 {
		return Unavailable
	}
	return PageCount{n: n, ok: true}
}

func (p PageCount) Get() (int, bool) {
	return p.n, p.ok
}

func (p PageCount) Available() bool {
	return p.ok
}

func (p PageCount) String() string {
	if !p.ok {
		return "N/A"
	}
	return strconv.Itoa(p.n)
}

// ResultRecord is one row of the search results.
type ResultRecord struct {
	ItemNumber        string
	DocumentId        string
	RecordingDate     time.Time
	RecordingDateText string
	DocumentType      string
	DocumentName      string
	NameType          string
	// DocumentLink is nil when the row carries no link.
	DocumentLink *url.URL
	PageCount    PageCount
}

func (r ResultRecord) LinkText() string {
	if r.DocumentLink == nil {
		return ""
	}
	return r.DocumentLink.String()
}

// DownloadTarget is a single page image of a document.
type DownloadTarget struct {
	DocumentId        string
	PageIndex         int
	ImageResourcePath string
}

// PageFailure is a page that was skipped while downloading.
type PageFailure struct {
	PageIndex int
	Err       error
}

// DownloadReport is what happened while downloading the pages of a document.
type DownloadReport struct {
	DocumentId string
	Written    []string
	Skipped    []PageFailure
}
