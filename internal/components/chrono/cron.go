package chrono

import (
	"context"
	"countyrecorder/internal/components/telemetry"
	"fmt"

	"github.com/robfig/cron/v3"
)

// CronAPI is the interface that anything depending on things to happen on a cron job should use.
type CronAPI interface {
	Cron(spec string, callback func()) error
}

// StandardCron is the standard implementation of CronAPI using `github.com/robfig/cron/v3`
type StandardCron struct {
	cron *cron.Cron
}

// NewStandardCron starts a cron scheduler, specs are read in the location of clock.
func NewStandardCron(clock API, tel telemetry.API) StandardCron {
	cronner := cron.New(
		cron.WithLogger(cronLogger{tel: telemetry.NewScopedAPI("cron", tel)}),
		cron.WithLocation(clock.Location()),
	)
	cronner.Start()

	return StandardCron{
		cron: cronner,
	}
}

func (s StandardCron) Cron(spec string, callback func()) error {
	_, err := s.cron.AddFunc(spec, callback)
	if err != nil {
		return fmt.Errorf("cron spec %q: %w", spec, err)
	}
	return nil
}

// Stop stops scheduling, the returned context is done once running jobs
// have completed.
func (s StandardCron) Stop() context.Context {
	return s.cron.Stop()
}

type cronLogger struct {
	tel telemetry.API
}

func (l cronLogger) formatParams(keysAndValues []any) []any {
	params := []any{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		params = append(params, fmt.Sprintf("%v: %v", keysAndValues[i], keysAndValues[i+1]))
	}
	return params
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.tel.ReportDebug(msg, l.formatParams(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.tel.ReportBroken(
		"cron.job",
		append([]any{fmt.Errorf("%s: %w", msg, err)}, l.formatParams(keysAndValues)...)...,
	)
}
