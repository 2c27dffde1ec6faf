package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

type memoryOutput struct {
	mutex    sync.Mutex
	messages map[string]string
}

func (o *memoryOutput) Write(id string, contents string) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.messages[id] = contents
}

func TestScopedAPI(t *testing.T) {
	tel := NewMemoryAPI()
	scoped := NewScopedAPI("downloader", tel)

	scoped.ReportWarning("downloader.download-page", "2021000123", 2)
	scoped.ReportCount("scraper.records", 3)

	warnings := tel.Find(REPORT_WARNING, "downloader.download-page")
	require.Len(t, warnings, 1)
	require.Equal(t, "downloader: downloader.download-page", warnings[0].Id)
	require.Equal(t, []any{"2021000123", 2}, warnings[0].Params)

	counts := tel.Find(REPORT_COUNT, "records")
	require.Len(t, counts, 1)
	require.Equal(t, int64(3), counts[0].Count)
	require.Empty(t, tel.Find(REPORT_BROKEN, ""))
}

func TestInstrumentResty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/image" {
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write([]byte{0xff, 0xd8, 0xff})
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<p>search</p>"))
	}))
	defer server.Close()

	tel := NewMemoryAPI()
	output := &memoryOutput{messages: map[string]string{}}
	client := resty.New().SetBaseURL(server.URL)
	InstrumentResty(client, tel, output)

	_, err := client.R().SetFormData(map[string]string{"__VIEWSTATE": "abc"}).Post("/Search.aspx")
	require.NoError(t, err)
	_, err = client.R().Get("/image")
	require.NoError(t, err)

	require.Len(t, tel.Find(REPORT_DEBUG, report_resty_request), 2)
	require.Len(t, tel.Find(REPORT_DEBUG, report_resty_response), 2)

	require.Len(t, output.messages, 2)
	require.Contains(t, output.messages["1"], "POST")
	require.Contains(t, output.messages["1"], "<p>search</p>")
	require.Contains(t, output.messages["2"], "<3 bytes of image/jpeg>")
}

func TestInstrumentRestyError(t *testing.T) {
	tel := NewMemoryAPI()
	client := resty.New()
	InstrumentResty(client, tel, nil)

	_, err := client.R().Get("http://127.0.0.1:0/unreachable")
	require.Error(t, err)
	require.Len(t, tel.Find(REPORT_BROKEN, report_resty_response), 1)
}

func TestFilesystemOutput(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "dump/stale.txt", []byte("old"), 0o644))

	output, err := NewFilesystemOutput(fs, "dump")
	require.NoError(t, err)
	output.Write("1", "---- REQUEST ----")

	files, err := afero.ReadDir(fs, "dump")
	require.NoError(t, err)
	require.Len(t, files, 1)

	contents, err := afero.ReadFile(fs, "dump/1.txt")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(contents), "---- REQUEST ----"))
}
