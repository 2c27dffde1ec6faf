package export

import (
	"bytes"
	"countyrecorder/internal/scrapers/recorder"
	"database/sql"
	"encoding/csv"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func testRecords(t testing.TB) []recorder.ResultRecord {
	link, err := url.Parse("https://recorder.example/DocumentDetails.aspx?DK=2021000123&X=1")
	if err != nil {
		t.Fatal(err)
	}
	return []recorder.ResultRecord{
		{
			ItemNumber:        "1",
			DocumentId:        "2021000123",
			RecordingDate:     time.Date(2021, 3, 4, 10, 15, 0, 0, time.UTC),
			RecordingDateText: "03-04-2021 10:15:00 AM",
			DocumentType:      "LIEN",
			DocumentName:      "SMITH, JOHN",
			NameType:          "Grantor",
			DocumentLink:      link,
			PageCount:         recorder.Pages(3),
		},
		{
			ItemNumber:        "2",
			DocumentId:        "2020000042",
			RecordingDate:     time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
			RecordingDateText: "01-01-2020",
			DocumentType:      "LIEN, RELEASE",
			DocumentName:      `DOE "JD", JANE`,
			NameType:          "Grantee",
			PageCount:         recorder.Unavailable,
		},
	}
}

var expectedRows = [][]string{
	Columns,
	{"1", "2021000123", "03-04-2021 10:15:00 AM", "LIEN", "SMITH, JOHN", "Grantor", "https://recorder.example/DocumentDetails.aspx?DK=2021000123&X=1", "3"},
	{"2", "2020000042", "01-01-2020", "LIEN, RELEASE", `DOE "JD", JANE`, "Grantee", "", "N/A"},
}

func TestCSVSink(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := filepath.Join("output", ResultsFilename)

	require.NoError(t, afero.WriteFile(fs, path, []byte("stale,export\nfrom,before\n"), 0o644))

	sink, err := NewCSVSink(fs, path)
	require.NoError(t, err)
	require.NoError(t, Write(testRecords(t), sink))

	contents, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	rows, err := csv.NewReader(bytes.NewReader(contents)).ReadAll()
	require.NoError(t, err)

	if diff := cmp.Diff(expectedRows, rows); diff != "" {
		t.Fatalf("csv export mismatch (-want +got):\n%s", diff)
	}
}

func TestCSVSinkEmpty(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := filepath.Join("output", ResultsFilename)

	sink, err := NewCSVSink(fs, path)
	require.NoError(t, err)
	require.NoError(t, Write(nil, sink))

	contents, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	rows, err := csv.NewReader(bytes.NewReader(contents)).ReadAll()
	require.NoError(t, err)
	require.Equal(t, [][]string{Columns}, rows)
}

func TestSQLiteSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exports", "county", "results.db")
	fs := afero.NewOsFs()

	// the second run must replace the first one, not append to it
	for i := 0; i < 2; i++ {
		sink, err := NewSQLiteSink(fs, path)
		require.NoError(t, err)
		require.NoError(t, Write(testRecords(t), sink))
	}

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	rows, err := db.Query(`SELECT "Item#", "Document ID#", "Document", "Page Count" FROM records ORDER BY position`)
	require.NoError(t, err)
	defer rows.Close()

	var got [][]string
	for rows.Next() {
		var item, id, link, pages string
		require.NoError(t, rows.Scan(&item, &id, &link, &pages))
		got = append(got, []string{item, id, link, pages})
	}
	require.NoError(t, rows.Err())

	require.Equal(t, [][]string{
		{"1", "2021000123", "https://recorder.example/DocumentDetails.aspx?DK=2021000123&X=1", "3"},
		{"2", "2020000042", "", "N/A"},
	}, got)
}

func TestSQLiteSinkDirectoryError(t *testing.T) {
	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
	_, err := NewSQLiteSink(fs, filepath.Join("exports", "results.db"))
	require.Error(t, err)
}

func TestTableSink(t *testing.T) {
	out := &bytes.Buffer{}
	require.NoError(t, Write(testRecords(t), NewTableSink(out)))

	rendered := out.String()
	require.Contains(t, rendered, "2021000123")
	require.Contains(t, rendered, "SMITH, JOHN")
	require.Contains(t, rendered, "N/A")
}

func TestDiscard(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := filepath.Join("output", ResultsFilename)
	require.NoError(t, afero.WriteFile(fs, path, []byte("previous,run\n"), 0o644))

	sink, err := NewCSVSink(fs, path)
	require.NoError(t, err)
	require.NoError(t, sink.WriteHeader(Columns))
	require.NoError(t, Discard(sink, NewTableSink(&bytes.Buffer{})))

	contents, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	require.Equal(t, "previous,run\n", string(contents))

	files, err := afero.ReadDir(fs, "output")
	require.NoError(t, err)
	require.Len(t, files, 1)
}
