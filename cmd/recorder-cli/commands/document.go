package commands

import (
	"countyrecorder/internal/components/osutil"
	"countyrecorder/internal/scrapers/recorder"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func init() {
	flags := documentCmd.Flags()
	flags.String("site", recorder.DefaultBaseUrl, "The recorder site to download from.")
	flags.String("output", "", "The directory to write the documents to.")
	flags.Int("timeout", 0, "The timeout of a single request in seconds.")
	rootCmd.AddCommand(documentCmd)
}

var documentCmd = &cobra.Command{
	Use:   "document <document_id>...",
	Short: "Downloads the pdf of documents by their id, no search is needed.",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := readConfig(cmd.Flags())
		if err != nil {
			osutil.Fatal("failed to read config", err)
		}
		s := newSession(cfg)

		client, err := recorder.NewClient(s.clientOpts, s.tel)
		if err != nil {
			osutil.Fatal("failed to create client", err)
		}
		err = s.fs.MkdirAll(cfg.Output, 0o755)
		if err != nil {
			osutil.Fatal("failed to create output directory", err)
		}
		downloader := recorder.NewDownloader(client, s.fs, nil, s.tel)

		failed := 0
		for _, id := range args {
			path, err := downloader.DownloadWholeDocument(cmd.Context(), id, cfg.Output)
			if err != nil {
				failed++
				continue
			}
			slog.Info("downloaded document", "id", id, "path", path)
		}
		if failed > 0 {
			osutil.Fatal("some documents failed", fmt.Errorf("%d of %d documents failed", failed, len(args)))
		}
	},
}
