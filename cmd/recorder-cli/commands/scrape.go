package commands

import (
	"countyrecorder/internal/components/chrono"
	"countyrecorder/internal/components/osutil"
	"countyrecorder/internal/export"
	"countyrecorder/internal/scrape"
	"countyrecorder/internal/scrapers/recorder"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	scrapeDb             *string
	scrapePrint          *bool
	scrapeBundle         *bool
	scrapeWholeDocuments *bool
	scrapeEvery          *string
	scrapeWindowDays     *int
)

func init() {
	flags := scrapeCmd.Flags()
	flags.String("site", recorder.DefaultBaseUrl, "The recorder site to scrape.")
	flags.String("state", "", "The state to search in, as shown in the dropdown.")
	flags.String("county", "", "The county to search in, as shown in the dropdown.")
	flags.String("group", "", "The document group, either its option value or its display text.")
	flags.String("start", "", "The first recording date to include (MM-DD-YYYY).")
	flags.String("end", "", "The last recording date to include (MM-DD-YYYY).")
	flags.String("output", "", "The directory to write the export and page images to.")
	flags.Int("workers", 0, "How many requests may be in flight while downloading.")
	flags.Int("timeout", 0, "The timeout of a single request in seconds.")
	flags.String("timezone", "", "The timezone schedules and trailing windows are read in.")

	scrapeDb = flags.String("db", "", "A sqlite database to also write the export to.")
	scrapePrint = flags.Bool("print", false, "Print the export as a table.")
	scrapeBundle = flags.Bool("bundle", false, "Assemble the page images of each document into a pdf.")
	scrapeWholeDocuments = flags.Bool("whole-documents", false, "Also download the pdf of each document.")
	scrapeEvery = flags.String("every", "", "Keep running, scraping each time this cron spec fires.")
	scrapeWindowDays = flags.Int("window-days", 0, "Search the last N days up to today instead of --start/--end.")

	rootCmd.AddCommand(scrapeCmd)
}

func openSinks(fs afero.Fs, output string) ([]export.Sink, error) {
	csvSink, err := export.NewCSVSink(fs, filepath.Join(output, export.ResultsFilename))
	if err != nil {
		return nil, err
	}
	sinks := []export.Sink{csvSink}
	if *scrapeDb != "" {
		dbSink, err := export.NewSQLiteSink(fs, *scrapeDb)
		if err != nil {
			export.Discard(sinks...)
			return nil, err
		}
		sinks = append(sinks, dbSink)
	}
	if *scrapePrint {
		sinks = append(sinks, export.NewTableSink(os.Stdout))
	}
	return sinks, nil
}

func logResult(runId string, result scrape.Result, elapsed time.Duration) {
	skipped := 0
	for _, d := range result.Downloads {
		skipped += len(d.Skipped)
	}
	slog.Info(
		"scrape finished",
		"run", runId,
		"records", len(result.Records),
		"unparsable_rows", result.Extraction.Skipped,
		"documents", len(result.Downloads),
		"skipped_pages", skipped,
		"seconds", elapsed.Seconds(),
	)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [--state <name>] [--county <name>] [--start <MM-DD-YYYY>] [--end <MM-DD-YYYY>] [--every <cron spec>]",
	Short: "Runs a document search and downloads the page images of every result in range.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := readConfig(cmd.Flags())
		if err != nil {
			osutil.Fatal("failed to read config", err)
		}
		clock, err := chrono.NewStandardImpl(cfg.Timezone)
		if err != nil {
			osutil.Fatal("invalid timezone", err)
		}

		fixedRange, err := recorder.ParseDateRange(cfg.StartDate, cfg.EndDate)
		if err != nil && *scrapeWindowDays <= 0 {
			osutil.Fatal("invalid date range", err)
		}
		dateRange := func(now time.Time) (recorder.DateRange, error) {
			if *scrapeWindowDays > 0 {
				return recorder.TrailingRange(now, *scrapeWindowDays)
			}
			return fixedRange, nil
		}

		s := newSession(cfg)
		scraper := scrape.NewScraper(s.clientOpts, s.fs, s.tel)

		job := func(now time.Time) (scrape.Options, []export.Sink, error) {
			r, err := dateRange(now)
			if err != nil {
				return scrape.Options{}, nil, err
			}
			sinks, err := openSinks(s.fs, cfg.Output)
			if err != nil {
				return scrape.Options{}, nil, err
			}
			slog.Info("searching", "from", r.StartText(), "to", r.EndText())
			return scrape.Options{
				Jurisdiction:    cfg.Jurisdiction,
				SubJurisdiction: cfg.SubJurisdiction,
				DocumentGroup:   cfg.DocumentGroup,
				Range:           r,
				OutputRoot:      cfg.Output,
				Workers:         cfg.Workers,
				WholeDocuments:  *scrapeWholeDocuments,
				Bundle:          *scrapeBundle,
			}, sinks, nil
		}

		if *scrapeEvery != "" {
			cron := chrono.NewStandardCron(clock, s.tel)
			defer cron.Stop()
			slog.Info("scraping on a schedule", "every", *scrapeEvery, "timezone", clock.Location().String())
			err = scraper.Schedule(cmd.Context(), cron, clock, *scrapeEvery, job)
			if err != nil {
				osutil.Fatal("failed to schedule scrape", err)
			}
			return
		}

		opts, sinks, err := job(clock.Now())
		if err != nil {
			osutil.Fatal("failed to prepare scrape", err)
		}
		t1 := time.Now()
		result, err := scraper.Run(cmd.Context(), opts, sinks...)
		t2 := time.Now()
		if err != nil {
			osutil.Fatal("scrape failed", err)
		}
		logResult(s.runId, result, t2.Sub(t1))
	},
}
