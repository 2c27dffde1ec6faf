package recorder

import (
	"countyrecorder/internal/components/telemetry"
	"countyrecorder/pkg/htmlutil"
	"fmt"

	"github.com/PuerkitoBio/goquery"
)

const (
	report_extractor_results_table = "extractor.results-table"
	report_extractor_parse_row     = "extractor.parse-row"
	report_extractor_skipped_rows  = "extractor.skipped-rows"
)

// minimum number of data cells a result row must have
const min_row_cells = 6

var resultsTablePath = []htmlutil.Stage{
	{Name: "outer table", Selector: "table#tableMain"},
	{Name: "content cell", Selector: "td#tableMain_Content"},
	{Name: "main division", Selector: "div.main"},
	{Name: "results division", Selector: "div#PrintResults"},
	{Name: "results table", Selector: "table.Results"},
}

// Extraction is the outcome of reading a search results page.
type Extraction struct {
	// Records are the parsed rows that fall within the date range, in table order.
	Records []ResultRecord
	// Parsed is every row that could be parsed, in range or not.
	Parsed []ResultRecord
	// Skipped counts rows that could not be parsed.
	Skipped int
	// Missing is set when the results table could not be located.
	Missing error
}

// Extractor reads result records out of a search results page.
type Extractor struct {
	client *Client
	tel    telemetry.API
}

func NewExtractor(client *Client, tel telemetry.API) Extractor {
	return Extractor{
		client: client,
		tel:    telemetry.NewScopedAPI("extractor", tel),
	}
}

// Extract never fails, a page without a results table (or with zero
// results) yields an empty extraction.
func (e Extractor) Extract(doc *goquery.Document, dateRange DateRange) Extraction {
	table, err := htmlutil.Chain(doc.Selection, resultsTablePath...)
	if err != nil {
		e.tel.ReportWarning(report_extractor_results_table, err)
		return Extraction{Missing: err}
	}

	var out Extraction
	table.Find("tr.results-data-row").Each(func(i int, row *goquery.Selection) {
		record, err := e.parseRow(row)
		if err != nil {
			e.tel.ReportWarning(report_extractor_parse_row, i, err)
			out.Skipped++
			return
		}
		out.Parsed = append(out.Parsed, record)
		if !dateRange.Contains(record.RecordingDate) {
			e.tel.ReportDebug("record out of range", record.DocumentId, record.RecordingDateText)
			return
		}
		out.Records = append(out.Records, record)
	})

	if out.Skipped > 0 {
		e.tel.ReportCount(report_extractor_skipped_rows, int64(out.Skipped))
	}
	return out
}

func (e Extractor) parseRow(row *goquery.Selection) (ResultRecord, error) {
	cells := row.ChildrenFiltered("td")
	if cells.Length() < min_row_cells {
		return ResultRecord{}, fmt.Errorf("row has %d cells, need %d", cells.Length(), min_row_cells)
	}
	cell := func(i int) string {
		return htmlutil.CleanText(cells.Eq(i))
	}

	dateText := cell(2)
	recordingDate, err := parseRecordingDate(dateText)
	if err != nil {
		return ResultRecord{}, err
	}

	record := ResultRecord{
		ItemNumber:        cell(0),
		DocumentId:        cell(1),
		RecordingDate:     recordingDate,
		RecordingDateText: dateText,
		DocumentType:      cell(3),
		DocumentName:      cell(4),
		NameType:          cell(5),
	}

	href, ok := cells.Eq(1).Find("a").First().Attr("href")
	if ok && href != "" {
		link, err := e.client.Resolve(href)
		if err != nil {
			e.tel.ReportWarning(report_extractor_parse_row, record.DocumentId, fmt.Errorf("parse document link: %w", err))
		} else {
			record.DocumentLink = link
		}
	}

	return record, nil
}
