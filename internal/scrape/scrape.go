// Package scrape runs a whole search: navigation, extraction, page image
// downloads and exports.
package scrape

import (
	"context"
	"countyrecorder/internal/bundle"
	"countyrecorder/internal/components/assert"
	"countyrecorder/internal/components/telemetry"
	"countyrecorder/internal/export"
	"countyrecorder/internal/scrapers/recorder"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	report_scraper_run             = "scraper.run"
	report_scraper_bundle          = "scraper.bundle"
	report_scraper_export          = "scraper.export"
	report_scraper_records         = "scraper.records"
	report_scraper_pages_written   = "scraper.pages-written"
	report_scraper_pages_skipped   = "scraper.pages-skipped"
	report_scraper_whole_documents = "scraper.whole-documents"
)

const DefaultWorkers = 4

type Options struct {
	Jurisdiction    string
	SubJurisdiction string
	DocumentGroup   string
	Range           recorder.DateRange
	OutputRoot      string
	// Workers bounds the number of requests in flight while downloading.
	Workers int
	// WholeDocuments also downloads the flat pdf of every in-range document.
	WholeDocuments bool
	// Bundle assembles the downloaded page images of a document into a pdf.
	Bundle bool
}

type Result struct {
	Extraction recorder.Extraction
	// Records are the in-range records with their page counts, in table order.
	Records []recorder.ResultRecord
	// Downloads has one report per downloaded document, in table order.
	Downloads []recorder.DownloadReport
	Documents []string
	Bundles   []string
}

type Scraper struct {
	clientOpts recorder.ClientOptions
	fs         afero.Fs
	tel        telemetry.API
}

func NewScraper(clientOpts recorder.ClientOptions, fs afero.Fs, tel telemetry.API) Scraper {
	assert.NotNil(fs)
	assert.NotNil(tel)
	return Scraper{
		clientOpts: clientOpts,
		fs:         fs,
		tel:        telemetry.NewScopedAPI("scrape", tel),
	}
}

type document struct {
	id   string
	link *url.URL
}

// uniqueDocuments lists the documents of records once each, several rows
// (one per party name) commonly point at the same document. The first row
// of a document that carries a link provides it.
func uniqueDocuments(records []recorder.ResultRecord) []document {
	index := map[string]int{}
	var out []document
	for _, r := range records {
		if r.DocumentId == "" {
			continue
		}
		i, seen := index[r.DocumentId]
		if !seen {
			index[r.DocumentId] = len(out)
			out = append(out, document{id: r.DocumentId, link: r.DocumentLink})
			continue
		}
		if out[i].link == nil {
			out[i].link = r.DocumentLink
		}
	}
	return out
}

// Run performs a full scrape and writes the export to every sink. A
// navigation failure aborts the run before anything is written, everything
// after navigation is best effort. Run owns the sinks, they are either
// written and closed or discarded.
func (s Scraper) Run(ctx context.Context, opts Options, sinks ...export.Sink) (Result, error) {
	exporting := false
	defer func() {
		if !exporting {
			export.Discard(sinks...)
		}
	}()

	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}

	client, err := recorder.NewClient(s.clientOpts, s.tel)
	if err != nil {
		return Result{}, err
	}

	navigator := recorder.NewNavigator(client, s.tel)
	page, err := navigator.Run(ctx, recorder.SearchSteps(
		opts.Jurisdiction,
		opts.SubJurisdiction,
		opts.DocumentGroup,
		opts.Range,
	)...)
	if err != nil {
		s.tel.ReportBroken(report_scraper_run, err)
		return Result{}, err
	}

	extraction := recorder.NewExtractor(client, s.tel).Extract(page.Doc, opts.Range)
	s.tel.ReportCount(report_scraper_records, int64(len(extraction.Records)))

	result := Result{Extraction: extraction}
	documents := uniqueDocuments(extraction.Records)

	limiter := semaphore.NewWeighted(int64(opts.Workers))
	pageCounts, reports := s.downloadPages(ctx, client, limiter, documents, opts)

	for _, r := range extraction.Records {
		r.PageCount = pageCounts[r.DocumentId]
		result.Records = append(result.Records, r)
	}
	for _, doc := range documents {
		report, ok := reports[doc.id]
		if !ok {
			continue
		}
		result.Downloads = append(result.Downloads, report)
		if opts.Bundle && len(report.Written) > 0 {
			path, err := bundle.Pages(s.fs, recorder.DocumentDir(opts.OutputRoot, doc.id), doc.id, report.Written)
			if err != nil {
				s.tel.ReportWarning(report_scraper_bundle, doc.id, err)
				continue
			}
			result.Bundles = append(result.Bundles, path)
		}
	}

	if opts.WholeDocuments {
		result.Documents, err = s.downloadWholeDocuments(ctx, limiter, documents, opts.OutputRoot)
		if err != nil {
			return result, err
		}
	}

	// a cancelled run does not replace a previous export with a partial one
	if ctx.Err() != nil {
		return result, ctx.Err()
	}

	exporting = true
	var exportErrs []error
	for _, sink := range sinks {
		err := export.Write(result.Records, sink)
		if err != nil {
			s.tel.ReportBroken(report_scraper_export, err)
			exportErrs = append(exportErrs, err)
		}
	}
	return result, errors.Join(exportErrs...)
}

// downloadPages resolves and downloads every document, results are keyed by
// document id since completion order is arbitrary.
func (s Scraper) downloadPages(
	ctx context.Context,
	client *recorder.Client,
	limiter *semaphore.Weighted,
	documents []document,
	opts Options,
) (map[string]recorder.PageCount, map[string]recorder.DownloadReport) {
	resolver := recorder.NewResolver(client, s.tel)
	downloader := recorder.NewDownloader(client, s.fs, limiter, s.tel)

	pageCounts := map[string]recorder.PageCount{}
	reports := map[string]recorder.DownloadReport{}
	var mutex sync.Mutex

	var written, skipped int64

	group := errgroup.Group{}
	group.SetLimit(opts.Workers)
	for _, doc := range documents {
		if doc.link == nil {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		group.Go(func() error {
			err := limiter.Acquire(ctx, 1)
			if err != nil {
				return nil
			}
			count := resolver.Resolve(ctx, doc.link)
			limiter.Release(1)

			mutex.Lock()
			pageCounts[doc.id] = count
			mutex.Unlock()

			n, ok := count.Get()
			if !ok {
				return nil
			}
			report := downloader.DownloadPages(ctx, doc.id, doc.link, n, opts.OutputRoot)

			mutex.Lock()
			defer mutex.Unlock()
			reports[doc.id] = report
			written += int64(len(report.Written))
			skipped += int64(len(report.Skipped))
			return nil
		})
	}
	group.Wait()

	s.tel.ReportCount(report_scraper_pages_written, written)
	if skipped > 0 {
		s.tel.ReportCount(report_scraper_pages_skipped, skipped)
	}
	return pageCounts, reports
}

// downloadWholeDocuments runs on a client of its own, whole documents do
// not need the search session.
func (s Scraper) downloadWholeDocuments(
	ctx context.Context,
	limiter *semaphore.Weighted,
	documents []document,
	outputRoot string,
) ([]string, error) {
	client, err := recorder.NewClient(s.clientOpts, s.tel)
	if err != nil {
		return nil, fmt.Errorf("whole document client: %w", err)
	}
	downloader := recorder.NewDownloader(client, s.fs, limiter, s.tel)

	paths := make([]string, len(documents))
	group := errgroup.Group{}
	for i, doc := range documents {
		if ctx.Err() != nil {
			break
		}
		group.Go(func() error {
			path, err := downloader.DownloadWholeDocument(ctx, doc.id, outputRoot)
			if err != nil {
				return nil
			}
			paths[i] = path
			return nil
		})
	}
	group.Wait()

	var out []string
	for _, p := range paths {
		if p != "" {
			out = append(out, p)
		}
	}
	s.tel.ReportCount(report_scraper_whole_documents, int64(len(out)))
	return out, nil
}
