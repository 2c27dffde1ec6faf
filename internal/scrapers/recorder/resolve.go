package recorder

import (
	"context"
	"countyrecorder/internal/components/telemetry"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	report_resolver_resolve = "resolver.resolve"

	input_view_image_id = "MainContent_searchMainContent_ctl00_btnViewImage"
	input_page_count_id = "MainContent_searchMainContent_ctl00_tbPageCount"
)

// Resolver finds out how many page images a document has.
type Resolver struct {
	client *Client
	tel    telemetry.API
}

func NewResolver(client *Client, tel telemetry.API) Resolver {
	return Resolver{
		client: client,
		tel:    telemetry.NewScopedAPI("resolver", tel),
	}
}

// Resolve returns Unavailable for documents without a "view image" control
// and for anything that goes wrong, a single document never fails a batch.
func (r Resolver) Resolve(ctx context.Context, documentLink *url.URL) PageCount {
	if documentLink == nil {
		return Unavailable
	}
	endpoint := documentLink.String()

	page, err := r.client.getPage(ctx, endpoint)
	if err != nil {
		r.tel.ReportBroken(report_resolver_resolve, fmt.Errorf("fetch: %w", err), endpoint)
		return Unavailable
	}

	if page.Doc.Find(fmt.Sprintf("input#%s", input_view_image_id)).Length() == 0 {
		r.tel.ReportDebug("no view image control", endpoint)
		return Unavailable
	}

	value, ok := page.Doc.Find(fmt.Sprintf("input#%s", input_page_count_id)).First().Attr("value")
	if !ok {
		r.tel.ReportWarning(report_resolver_resolve, "page count field missing", endpoint)
		return Unavailable
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 {
		r.tel.ReportWarning(report_resolver_resolve, fmt.Errorf("page count %q is not a positive number", value), endpoint)
		return Unavailable
	}
	return Pages(n)
}
