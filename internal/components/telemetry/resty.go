package telemetry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	report_resty_request  = "resty.request"
	report_resty_response = "resty.response"
)

// MessageOutput receives the full text of every request/response pair, it is
// what `--dump-http` writes to.
type MessageOutput interface {
	Write(id string, contents string)
}

type instrumentResty struct {
	tel       API
	output    MessageOutput
	idcounter *uint64
}

// InstrumentResty reports every request made by client, `output` can be nil.
func InstrumentResty(client *resty.Client, tel API, output MessageOutput) {
	var idcounter uint64
	i := instrumentResty{tel: tel, output: output, idcounter: &idcounter}

	client.OnBeforeRequest(i.onBeforeRequest)
	client.OnAfterResponse(i.onAfterResponse)
	client.OnError(i.onError)
}

type reqCtxKeyType int

var reqCtxKey reqCtxKeyType

type reqCtx struct {
	id        uint64
	startTime time.Time
}

func (i instrumentResty) onBeforeRequest(_ *resty.Client, req *resty.Request) error {
	id := atomic.AddUint64(i.idcounter, 1)
	ctx := context.WithValue(req.Context(), reqCtxKey, reqCtx{
		id:        id,
		startTime: time.Now(),
	})
	i.tel.ReportDebug(report_resty_request, id, req.Method, req.URL)

	req.SetContext(ctx)
	return nil
}

func (i instrumentResty) onAfterResponse(_ *resty.Client, res *resty.Response) error {
	rc, ok := res.Request.Context().Value(reqCtxKey).(reqCtx)
	if !ok {
		return nil
	}

	i.tel.ReportDebug(
		report_resty_response,
		rc.id,
		time.Since(rc.startTime).String(),
		res.Status(),
	)
	if i.output != nil {
		i.output.Write(strconv.FormatUint(rc.id, 10), formatHttpMessage(res))
	}

	return nil
}

func (i instrumentResty) onError(req *resty.Request, err error) {
	var duration time.Duration
	if rc, ok := req.Context().Value(reqCtxKey).(reqCtx); ok {
		duration = time.Since(rc.startTime)
	}

	i.tel.ReportBroken(
		report_resty_response,
		err,
		req.Method,
		req.URL,
		duration,
	)
}

func formatHeaders(headers http.Header) string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out strings.Builder
	for _, k := range keys {
		for _, v := range headers[k] {
			out.WriteString(fmt.Sprintf("%s: %s\n", k, v))
		}
	}
	return strings.TrimSuffix(out.String(), "\n")
}

func formatRequestBody(req *http.Request) string {
	if req == nil || req.GetBody == nil {
		return "<NO BODY AVAILABLE>"
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Sprintf("failed to get request body: %s", err.Error())
	}
	readBody, err := io.ReadAll(body)
	if err != nil {
		return fmt.Sprintf("failed to read request body: %s", err.Error())
	}
	return string(readBody)
}

func formatResponseBody(res *resty.Response) string {
	contentType := res.Header().Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "text/") {
		return fmt.Sprintf("<%d bytes of %s>", len(res.Body()), contentType)
	}
	return res.String()
}

// 1: request method
// 2: request url
// 3: request headers in ("Key: Value" format)
// 4: request body
// 5: response status
// 6: response url
// 7: response headers in ("Key: Value" format)
// 8: response body
const messageInfoTemplate = `---- REQUEST ----

%s %s

%s

%s

---- RESPONSE ----

%s %s

%s

%s`

func formatHttpMessage(res *resty.Response) string {
	var requestHeaders string
	var rawRequest *http.Request
	if res.Request.RawRequest != nil {
		rawRequest = res.Request.RawRequest
		requestHeaders = formatHeaders(rawRequest.Header)
	}

	responseUrl := res.Request.URL
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		responseUrl = res.RawResponse.Request.URL.String()
	}

	return fmt.Sprintf(
		messageInfoTemplate,

		res.Request.Method, res.Request.URL,
		requestHeaders,
		formatRequestBody(rawRequest),

		strconv.Itoa(res.StatusCode()), responseUrl,
		formatHeaders(res.Header()),
		formatResponseBody(res),
	)
}
