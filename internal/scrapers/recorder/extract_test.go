package recorder

import (
	"countyrecorder/internal/components/telemetry"
	"countyrecorder/pkg/htmlutil"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func parseHtml(t testing.TB, contents string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(contents))
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func resultsPage(rows ...string) string {
	return fmt.Sprintf(`<html><body>
<table id="tableMain"><tr><td id="tableMain_Content">
<div class="main"><div id="PrintResults">
<table class="Results">
<tr class="results-header-row"><th>Item#</th></tr>
%s
</table>
</div></div>
</td></tr></table>
</body></html>`, strings.Join(rows, "\n"))
}

func resultRow(cells ...string) string {
	out := strings.Builder{}
	out.WriteString(`<tr class="results-data-row listitem-background-color1">`)
	for _, c := range cells {
		fmt.Fprintf(&out, "<td>%s</td>", c)
	}
	out.WriteString("</tr>")
	return out.String()
}

func TestExtract(t *testing.T) {
	client, _ := newTestClient(t, "https://recorder.example")
	tel := telemetry.NewMemoryAPI()
	extractor := NewExtractor(client, tel)

	doc := parseHtml(t, resultsPage(
		resultRow("1", `<a href="DocumentDetails.aspx?DK=2021000123&amp;X=abc">2021000123</a>`, "03-04-2021 10:15:00 AM", "LIEN", "SMITH,   JOHN", "Grantor"),
		resultRow("2", "2019000001", "12-31-2019", "LIEN", "DOE, JANE", "Grantee"),
		resultRow("3", "2021000999", "06-01-2021", "LIEN"),
		resultRow("4", "2020000042", "01-01-2020", "LIEN", "ROE, RICHARD", "Grantee"),
		resultRow("5", "2022000001", "01-01-2022 11:59:59 PM", "LIEN", "POE, EDGAR", "Grantor"),
		resultRow("6", "2022000002", "01-02-2022", "LIEN", "LOE, LISA", "Grantor"),
		resultRow("7", "2021000555", "sometime in 2021", "LIEN", "NOE, NED", "Grantor"),
	))

	extraction := extractor.Extract(doc, testRange(t))
	require.NoError(t, extraction.Missing)
	require.Equal(t, 2, extraction.Skipped)
	require.Len(t, extraction.Parsed, 5)

	var ids []string
	for _, r := range extraction.Records {
		ids = append(ids, r.DocumentId)
	}
	require.Equal(t, []string{"2021000123", "2020000042", "2022000001"}, ids)

	first := extraction.Records[0]
	require.Equal(t, "1", first.ItemNumber)
	require.Equal(t, "SMITH, JOHN", first.DocumentName)
	require.Equal(t, "Grantor", first.NameType)
	require.Equal(t, "03-04-2021 10:15:00 AM", first.RecordingDateText)
	require.Equal(t, time.Date(2021, 3, 4, 10, 15, 0, 0, time.UTC), first.RecordingDate)
	require.Equal(t, "https://recorder.example/DocumentDetails.aspx?DK=2021000123&X=abc", first.LinkText())
	require.False(t, first.PageCount.Available())

	require.Nil(t, extraction.Records[1].DocumentLink)

	require.Len(t, tel.Find(telemetry.REPORT_WARNING, report_extractor_parse_row), 2)
	require.Equal(t, int64(2), tel.Find(telemetry.REPORT_COUNT, report_extractor_skipped_rows)[0].Count)
}

func TestExtractMissingTable(t *testing.T) {
	client, _ := newTestClient(t, "https://recorder.example")
	tel := telemetry.NewMemoryAPI()
	extractor := NewExtractor(client, tel)

	testCases := []struct {
		name  string
		html  string
		stage int
	}{
		{
			name:  "no outer table",
			html:  `<p>Your session has expired.</p>`,
			stage: 0,
		},
		{
			name:  "no results division",
			html:  `<table id="tableMain"><tr><td id="tableMain_Content"><div class="main"><p>No documents found.</p></div></td></tr></table>`,
			stage: 3,
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			extraction := extractor.Extract(parseHtml(t, test.html), testRange(t))
			require.Empty(t, extraction.Records)

			var stageErr *htmlutil.StageError
			require.ErrorAs(t, extraction.Missing, &stageErr)
			require.Equal(t, test.stage, stageErr.Index)
		})
	}
	require.Len(t, tel.Find(telemetry.REPORT_WARNING, report_extractor_results_table), 2)
}

func TestExtractNoRows(t *testing.T) {
	client, _ := newTestClient(t, "https://recorder.example")
	extraction := NewExtractor(client, telemetry.NewMemoryAPI()).Extract(parseHtml(t, resultsPage()), testRange(t))
	require.NoError(t, extraction.Missing)
	require.Empty(t, extraction.Records)
	require.Zero(t, extraction.Skipped)
}
