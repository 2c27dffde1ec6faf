package commands

import (
	"countyrecorder/internal/components/configutil"
	"countyrecorder/internal/scrape"
	"countyrecorder/internal/scrapers/recorder"

	"github.com/spf13/pflag"
)

type Config struct {
	BaseUrl         string `json:"base_url"`
	Jurisdiction    string `json:"jurisdiction"`
	SubJurisdiction string `json:"sub_jurisdiction"`
	DocumentGroup   string `json:"document_group"`
	StartDate       string `json:"start_date"`
	EndDate         string `json:"end_date"`
	Output          string `json:"output"`
	Workers         int    `json:"workers"`
	TimeoutSeconds  int    `json:"timeout_seconds"`

	// Timezone is an IANA location name, empty means the local timezone.
	Timezone string `json:"timezone"`
}

var defaultConfig = Config{
	BaseUrl:         recorder.DefaultBaseUrl,
	Jurisdiction:    "COLORADO",
	SubJurisdiction: "WASHINGTON",
	DocumentGroup:   recorder.DefaultDocumentGroup,
	StartDate:       "01-01-2020",
	EndDate:         "01-01-2022",
	Output:          "output",
	Workers:         scrape.DefaultWorkers,
	TimeoutSeconds:  30,
}

// readConfig reads the config file, flags the user set take priority over it.
func readConfig(flags *pflag.FlagSet) (Config, error) {
	cfg, err := configutil.ReadConfig(*configPath, defaultConfig)
	if err != nil {
		return Config{}, err
	}

	override := func(name string, target *string) {
		if flags.Changed(name) {
			*target, _ = flags.GetString(name)
		}
	}
	override("site", &cfg.BaseUrl)
	override("state", &cfg.Jurisdiction)
	override("county", &cfg.SubJurisdiction)
	override("group", &cfg.DocumentGroup)
	override("start", &cfg.StartDate)
	override("end", &cfg.EndDate)
	override("output", &cfg.Output)
	override("timezone", &cfg.Timezone)

	if flags.Changed("workers") {
		cfg.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("timeout") {
		cfg.TimeoutSeconds, _ = flags.GetInt("timeout")
	}
	return cfg, nil
}
