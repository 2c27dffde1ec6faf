package scrape

import (
	"context"
	"countyrecorder/internal/components/chrono"
	"countyrecorder/internal/export"
	"sync"
	"time"
)

const (
	report_scraper_scheduled_run = "scraper.scheduled-run"
	report_scraper_overlap       = "scraper.overlap"
)

// Job prepares one scheduled run, `now` is when the schedule fired.
type Job func(now time.Time) (Options, []export.Sink, error)

// Schedule runs a scrape every time spec fires until ctx is done, then waits
// for the current run to finish. Runs never overlap, a firing that comes
// while a run is still going is skipped.
func (s Scraper) Schedule(ctx context.Context, cron chrono.CronAPI, clock chrono.API, spec string, job Job) error {
	var running sync.Mutex
	runs := 0

	err := cron.Cron(spec, func() {
		if !running.TryLock() {
			s.tel.ReportWarning(report_scraper_overlap, "previous run still going, skipping", spec)
			return
		}
		defer running.Unlock()
		if ctx.Err() != nil {
			return
		}

		runs++
		now := clock.Now()
		opts, sinks, err := job(now)
		if err != nil {
			s.tel.ReportBroken(report_scraper_scheduled_run, runs, err)
			return
		}
		result, err := s.Run(ctx, opts, sinks...)
		if err != nil {
			s.tel.ReportBroken(report_scraper_scheduled_run, runs, err)
			return
		}
		s.tel.ReportDebug("scheduled run finished", runs, now, len(result.Records))
	})
	if err != nil {
		return err
	}

	<-ctx.Done()
	running.Lock()
	defer running.Unlock()
	return nil
}
