package telemetry

import (
	"fmt"
	"io"
	"log/slog"
)

// SlogAPI implements API using the log/slog package.
type SlogAPI struct {
	logger *slog.Logger
}

// NewSlogAPI reports to the given logger, nil means slog.Default().
func NewSlogAPI(logger *slog.Logger) SlogAPI {
	return SlogAPI{logger: logger}
}

func (s SlogAPI) log() *slog.Logger {
	if s.logger == nil {
		return slog.Default()
	}
	return s.logger
}

func (SlogAPI) formatParams(out *[]any, params []any) {
	for i, p := range params {
		*out = append(
			*out,
			fmt.Sprintf("params.%d", i),
			p,
		)
	}
}

func (s SlogAPI) ReportBroken(id string, params ...any) {
	remainingPairs := []any{"id", id}
	s.formatParams(&remainingPairs, params)
	s.log().Error("broken component", remainingPairs...)
}

func (s SlogAPI) ReportWarning(id string, params ...any) {
	remainingPairs := []any{"id", id}
	s.formatParams(&remainingPairs, params)
	s.log().Warn("warning", remainingPairs...)
}

func (s SlogAPI) ReportDebug(message string, params ...any) {
	remainingPairs := []any{}
	s.formatParams(&remainingPairs, params)
	s.log().Debug(message, remainingPairs...)
}

func (s SlogAPI) ReportCount(id string, count int64) {
	s.log().Info("count", "id", id, "n", count)
}

// InitSlog installs a text handler on w as the default logger.
func InitSlog(w io.Writer, verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
