package recorder

import (
	"bytes"
	"context"
	"countyrecorder/internal/components/assert"
	"countyrecorder/internal/components/fsutil"
	"countyrecorder/internal/components/telemetry"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	report_downloader_download_page     = "downloader.download-page"
	report_downloader_download_document = "downloader.download-document"

	img_page_image_id = "MainContent_searchMainContent_ctl00_Image2"

	// pages of one document waiting on the limiter at once
	max_parallel_pages = 8

	endpoint_image_viewer = "/Image.aspx"
	endpoint_document     = "/Document.aspx"
)

var (
	ErrNoImageElement = errors.New("no image element on viewer page")
	ErrNotImage       = errors.New("response is not an image")
)

// Downloader fetches page images and whole documents into an output
// directory. Downloads only need the session cookies, never the view tokens.
type Downloader struct {
	client *Client
	fs     afero.Fs
	tel    telemetry.API
	// limiter bounds how many requests are in flight, nil downloads pages
	// one after the other.
	limiter *semaphore.Weighted
}

func NewDownloader(client *Client, fs afero.Fs, limiter *semaphore.Weighted, tel telemetry.API) Downloader {
	assert.NotNil(client)
	assert.NotNil(fs)
	return Downloader{
		client:  client,
		fs:      fs,
		limiter: limiter,
		tel:     telemetry.NewScopedAPI("downloader", tel),
	}
}

// DocumentDir holds the page images of a document.
func DocumentDir(outputRoot, documentId string) string {
	return filepath.Join(outputRoot, documentId)
}

// PagePath is where page `index` of a document is written to.
func PagePath(outputRoot, documentId string, index int) string {
	return filepath.Join(DocumentDir(outputRoot, documentId), fmt.Sprintf("%s_page_%d.jpg", documentId, index))
}

// DocumentPath is where a whole document download is written to.
func DocumentPath(outputRoot, documentId string) string {
	return filepath.Join(outputRoot, fmt.Sprintf("%s.pdf", documentId))
}

func (d Downloader) viewerEndpoint(documentLink *url.URL, index int) string {
	query := ""
	if documentLink != nil {
		query = documentLink.RawQuery
	}
	if query == "" {
		return fmt.Sprintf("%s?PN=%d", endpoint_image_viewer, index)
	}
	return fmt.Sprintf("%s?%s&PN=%d", endpoint_image_viewer, query, index)
}

func (d Downloader) acquire(ctx context.Context) (func(), error) {
	if d.limiter == nil {
		return func() {}, ctx.Err()
	}
	err := d.limiter.Acquire(ctx, 1)
	if err != nil {
		return nil, err
	}
	return func() { d.limiter.Release(1) }, nil
}

func (d Downloader) locateImage(ctx context.Context, documentId string, documentLink *url.URL, index int) (DownloadTarget, error) {
	release, err := d.acquire(ctx)
	if err != nil {
		return DownloadTarget{}, err
	}
	defer release()

	page, err := d.client.getPage(ctx, d.viewerEndpoint(documentLink, index))
	if err != nil {
		return DownloadTarget{}, fmt.Errorf("viewer page: %w", err)
	}
	src, ok := page.Doc.Find(fmt.Sprintf("img#%s", img_page_image_id)).First().Attr("src")
	if !ok || strings.TrimSpace(src) == "" {
		return DownloadTarget{}, ErrNoImageElement
	}
	resource, err := page.Url.Parse(strings.TrimSpace(src))
	if err != nil {
		return DownloadTarget{}, fmt.Errorf("parse image src %q: %w", src, err)
	}

	return DownloadTarget{
		DocumentId:        documentId,
		PageIndex:         index,
		ImageResourcePath: resource.String(),
	}, nil
}

func (d Downloader) fetchImage(ctx context.Context, target DownloadTarget, outputRoot string) (string, error) {
	release, err := d.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	res, err := d.client.Http.R().
		SetContext(ctx).
		Get(target.ImageResourcePath)
	if err != nil {
		return "", fmt.Errorf("fetch image: %w", err)
	}
	if !res.IsSuccess() {
		return "", fmt.Errorf("%w: %s %s", ErrUnexpectedStatus, target.ImageResourcePath, res.Status())
	}
	contentType := res.Header().Get("Content-Type")
	if !strings.Contains(strings.ToLower(contentType), "image") {
		return "", fmt.Errorf("%w: content type %q", ErrNotImage, contentType)
	}

	path := PagePath(outputRoot, target.DocumentId, target.PageIndex)
	err = fsutil.WriteFileAtomic(d.fs, path, bytes.NewReader(res.Body()))
	if err != nil {
		return "", err
	}
	return path, nil
}

func (d Downloader) downloadPage(ctx context.Context, documentId string, documentLink *url.URL, index int, outputRoot string) (string, error) {
	target, err := d.locateImage(ctx, documentId, documentLink, index)
	if err != nil {
		return "", err
	}
	return d.fetchImage(ctx, target, outputRoot)
}

// DownloadPages downloads pages 1..pageCount of a document into
// outputRoot/documentId. A page that fails is reported and skipped, the
// remaining pages are still downloaded.
func (d Downloader) DownloadPages(ctx context.Context, documentId string, documentLink *url.URL, pageCount int, outputRoot string) DownloadReport {
	report := DownloadReport{DocumentId: documentId}

	err := d.fs.MkdirAll(DocumentDir(outputRoot, documentId), 0o755)
	if err != nil {
		d.tel.ReportBroken(report_downloader_download_page, fmt.Errorf("create directory: %w", err), documentId)
		for i := 1; i <= pageCount; i++ {
			report.Skipped = append(report.Skipped, PageFailure{PageIndex: i, Err: err})
		}
		return report
	}

	type writtenPage struct {
		index int
		path  string
	}
	var written []writtenPage

	var mutex sync.Mutex
	record := func(index int, path string, err error) {
		mutex.Lock()
		defer mutex.Unlock()
		if err != nil {
			d.tel.ReportWarning(report_downloader_download_page, documentId, index, err)
			report.Skipped = append(report.Skipped, PageFailure{PageIndex: index, Err: err})
			return
		}
		d.tel.ReportDebug("downloaded page", documentId, index, path)
		written = append(written, writtenPage{index: index, path: path})
	}

	if d.limiter == nil {
		for i := 1; i <= pageCount; i++ {
			path, err := d.downloadPage(ctx, documentId, documentLink, i, outputRoot)
			record(i, path, err)
		}
	} else {
		group := errgroup.Group{}
		group.SetLimit(max_parallel_pages)
		for i := 1; i <= pageCount; i++ {
			group.Go(func() error {
				path, err := d.downloadPage(ctx, documentId, documentLink, i, outputRoot)
				record(i, path, err)
				return nil
			})
		}
		group.Wait()
	}

	sort.Slice(written, func(i, j int) bool {
		return written[i].index < written[j].index
	})
	for _, w := range written {
		report.Written = append(report.Written, w.path)
	}
	sort.Slice(report.Skipped, func(i, j int) bool {
		return report.Skipped[i].PageIndex < report.Skipped[j].PageIndex
	})
	return report
}

// DownloadWholeDocument downloads the flat pdf of a document by its id. It
// does not depend on any navigation, so it can run on a fresh client.
func (d Downloader) DownloadWholeDocument(ctx context.Context, documentId, outputRoot string) (string, error) {
	release, err := d.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	endpoint := fmt.Sprintf("%s?DK=%s", endpoint_document, url.QueryEscape(documentId))
	res, err := d.client.Http.R().
		SetContext(ctx).
		Get(endpoint)
	if err != nil {
		d.tel.ReportBroken(report_downloader_download_document, fmt.Errorf("fetch: %w", err), documentId)
		return "", err
	}
	if !res.IsSuccess() {
		err := fmt.Errorf("%w: %s %s", ErrUnexpectedStatus, endpoint, res.Status())
		d.tel.ReportBroken(report_downloader_download_document, err, documentId)
		return "", err
	}

	path := DocumentPath(outputRoot, documentId)
	err = fsutil.WriteFileAtomic(d.fs, path, bytes.NewReader(res.Body()))
	if err != nil {
		d.tel.ReportBroken(report_downloader_download_document, err, documentId)
		return "", err
	}
	return path, nil
}
