// client.go contains the http plumbing shared by every stage of a scrape, it
// knows nothing about which pages of the recorder site mean what.

package recorder

import (
	"bytes"
	"context"
	"countyrecorder/internal/components/assert"
	"countyrecorder/internal/components/telemetry"
	"errors"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

// DefaultBaseUrl is the production recorder site.
const DefaultBaseUrl = "https://www.thecountyrecorder.com"

var ErrUnexpectedStatus = errors.New("unexpected response status")

type Client struct {
	BaseUrl *url.URL
	Http    *resty.Client

	tel telemetry.API
}

type ClientOptions struct {
	BaseUrl string
	// Timeout defaults to 30 seconds.
	Timeout time.Duration
	// Output receives every request/response pair when set.
	Output telemetry.MessageOutput
}

// NewClient creates a client with its own cookie jar, every client is a
// separate session as far as the site is concerned.
func NewClient(opts ClientOptions, tel telemetry.API) (*Client, error) {
	assert.NotNil(tel)

	if opts.BaseUrl == "" {
		opts.BaseUrl = DefaultBaseUrl
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Second * 30
	}

	parsedBaseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(opts.BaseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	httpClient.SetCookieJar(jar)
	httpClient.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	httpClient.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(parsedBaseUrl.Hostname()))
	httpClient.SetTimeout(opts.Timeout)

	telemetry.InstrumentResty(httpClient, tel, opts.Output)

	return &Client{
		BaseUrl: parsedBaseUrl,
		Http:    httpClient,
		tel:     tel,
	}, nil
}

// Resolve turns an href found on a page into an absolute url on the site.
func (c *Client) Resolve(href string) (*url.URL, error) {
	parsed, err := url.Parse(href)
	if err != nil {
		return nil, err
	}
	return c.BaseUrl.ResolveReference(parsed), nil
}

// Page is a parsed html response.
type Page struct {
	// Url is where the response was actually served from, after redirects.
	Url *url.URL
	Doc *goquery.Document
}

func (c *Client) toPage(res *resty.Response) (*Page, error) {
	if !res.IsSuccess() {
		return nil, fmt.Errorf("%w: %s %s", ErrUnexpectedStatus, res.Request.URL, res.Status())
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	served := c.BaseUrl
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		served = res.RawResponse.Request.URL
	}
	return &Page{Url: served, Doc: doc}, nil
}

func (c *Client) getPage(ctx context.Context, endpoint string) (*Page, error) {
	res, err := c.Http.R().
		SetContext(ctx).
		Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", endpoint, err)
	}
	return c.toPage(res)
}

func (c *Client) postForm(ctx context.Context, endpoint string, fields map[string]string) (*Page, error) {
	res, err := c.Http.R().
		SetContext(ctx).
		SetFormData(fields).
		Post(endpoint)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", endpoint, err)
	}
	return c.toPage(res)
}

// samePath reports whether a page was served from endpoint, ignoring the query.
func (c *Client) samePath(page *Page, endpoint string) bool {
	if page == nil || page.Url == nil {
		return false
	}
	target, err := c.Resolve(endpoint)
	if err != nil {
		return false
	}
	return normalizePath(page.Url.Path) == normalizePath(target.Path)
}

func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	return p
}
