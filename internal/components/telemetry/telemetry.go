package telemetry

import (
	"fmt"
)

// API is an abstraction over logging/metrics so that tests can assert on what
// a component reported.
//
// note: fault injection point
type API interface {
	// ReportBroken reports a component that has broken in a way that should be addressed.
	//
	// The `id` identifies the **component** that broke, not the specific line. A failed
	// image fetch inside the download orchestrator is `downloader.download-page`, the
	// HTTP detail goes into a param or a wrapped error.
	//
	// Formatting rules:
	// 1) all lowercase
	// 2) use underscores for large components
	// 3) use dashes for methods part of a larger component
	//
	// ScopedAPI is usually enough to disambiguate between packages, so ids only need
	// `<name of struct>.<method>`.
	ReportBroken(id string, params ...any)

	// ReportWarning reports a scenario that does not necessarily indicate brokenness,
	// like a result row that could not be parsed or a document without images.
	//
	// For what value to provide as `id` refer to ReportBroken.
	ReportWarning(id string, params ...any)

	// ReportDebug reports some debug information that is dropped unless verbose.
	ReportDebug(msg string, params ...any)

	// ReportCount reports the current count of a specific event at the current time.
	//
	// For what value to provide as `id` refer to ReportBroken.
	ReportCount(id string, count int64)
}

// ScopedAPI attaches a namespace to every id it forwards, kind of like a
// "sub" logger with a prefix.
type ScopedAPI struct {
	namespace string
	inner     API
}

// NewScopedAPI creates a ScopedAPI out of a given namespace and another api.
func NewScopedAPI(namespace string, inner API) ScopedAPI {
	return ScopedAPI{namespace: namespace, inner: inner}
}

func (s ScopedAPI) ReportBroken(id string, params ...any) {
	s.inner.ReportBroken(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportWarning(id string, params ...any) {
	s.inner.ReportWarning(fmt.Sprintf("%s: %s", s.namespace, id), params...)
}

func (s ScopedAPI) ReportDebug(msg string, params ...any) {
	s.inner.ReportDebug(fmt.Sprintf("%s: %s", s.namespace, msg), params...)
}

func (s ScopedAPI) ReportCount(id string, count int64) {
	s.inner.ReportCount(fmt.Sprintf("%s: %s", s.namespace, id), count)
}
