package commands

import (
	"context"
	"countyrecorder/internal/components/osutil"
	"countyrecorder/internal/components/telemetry"
	"countyrecorder/internal/scrapers/recorder"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	configPath *string
	verbose    *bool
	dumpHttp   *string
)

var rootCmd = &cobra.Command{
	Use:   "recorder-cli",
	Short: "recorder-cli searches a county recorder site and downloads what it finds.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(os.Stderr, *verbose)
	},
}

func init() {
	configPath = rootCmd.PersistentFlags().String("config", "recorder.json5", "The config file, <name>.local.json5 next to it is merged on top.")
	verbose = rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log every request and step.")
	dumpHttp = rootCmd.PersistentFlags().String("dump-http", "", "A directory to write every request/response pair to.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// session is what every command that talks to the site needs.
type session struct {
	runId      string
	fs         afero.Fs
	tel        telemetry.API
	clientOpts recorder.ClientOptions
}

func newSession(cfg Config) session {
	runId := uuid.NewString()
	fs := afero.NewOsFs()
	tel := telemetry.NewSlogAPI(slog.Default().With("run", runId))

	clientOpts := recorder.ClientOptions{
		BaseUrl: cfg.BaseUrl,
		Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	}
	if *dumpHttp != "" {
		output, err := telemetry.NewFilesystemOutput(fs, filepath.Join(*dumpHttp, runId))
		if err != nil {
			osutil.Fatal("failed to create http dump directory", err)
		}
		clientOpts.Output = output
	}

	slog.Info("starting run", "run", runId, "site", clientOpts.BaseUrl)
	return session{
		runId:      runId,
		fs:         fs,
		tel:        tel,
		clientOpts: clientOpts,
	}
}
