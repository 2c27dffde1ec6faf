package telemetry

import (
	"strings"
	"sync"
)

type ReportKind int

const (
	REPORT_BROKEN ReportKind = iota
	REPORT_WARNING
	REPORT_DEBUG
	REPORT_COUNT
)

type Report struct {
	Kind   ReportKind
	Id     string
	Params []any
	Count  int64
}

// MemoryAPI keeps every report in memory, it is used by tests to assert
// that a component reported what it should have.
type MemoryAPI struct {
	mutex   sync.Mutex
	reports []Report
}

func NewMemoryAPI() *MemoryAPI {
	return &MemoryAPI{}
}

func (m *MemoryAPI) push(r Report) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.reports = append(m.reports, r)
}

func (m *MemoryAPI) ReportBroken(id string, params ...any) {
	m.push(Report{Kind: REPORT_BROKEN, Id: id, Params: params})
}

func (m *MemoryAPI) ReportWarning(id string, params ...any) {
	m.push(Report{Kind: REPORT_WARNING, Id: id, Params: params})
}

func (m *MemoryAPI) ReportDebug(msg string, params ...any) {
	m.push(Report{Kind: REPORT_DEBUG, Id: msg, Params: params})
}

func (m *MemoryAPI) ReportCount(id string, count int64) {
	m.push(Report{Kind: REPORT_COUNT, Id: id, Count: count})
}

// Reports returns a copy of every report received so far.
func (m *MemoryAPI) Reports() []Report {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	out := make([]Report, len(m.reports))
	copy(out, m.reports)
	return out
}

// Find returns the reports of a kind whose id ends with suffix, scoped ids
// carry a namespace prefix so suffix matching is what callers want.
func (m *MemoryAPI) Find(kind ReportKind, suffix string) []Report {
	var out []Report
	for _, r := range m.Reports() {
		if r.Kind == kind && strings.HasSuffix(r.Id, suffix) {
			out = append(out, r)
		}
	}
	return out
}
