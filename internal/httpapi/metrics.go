package httpapi

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
)

const metricsPrefix = "surge_balancer_"

// metricsStore keeps a handful of counters in memory and renders them in the
// Prometheus text format.
type metricsStore struct {
	mu sync.Mutex

	requestsTotal uint64
	requests      map[reqKey]uint64
	appErrors     map[errKey]uint64
	logins        map[bool]uint64
}

type reqKey struct {
	Pattern string
	Status  int
}

type errKey struct {
	Stage string
	Code  string
}

func newMetricsStore() *metricsStore {
	return &metricsStore{
		requests:  make(map[reqKey]uint64),
		appErrors: make(map[errKey]uint64),
		logins:    make(map[bool]uint64),
	}
}

var metrics = newMetricsStore()

// unmatchedPattern labels requests no route matched, keeping the series
// count bounded whatever paths clients send.
const unmatchedPattern = "unmatched"

func metricsIncRequest(pattern string, status int) {
	if status == 0 {
		status = http.StatusOK
	}
	if pattern == "" {
		pattern = "(unknown)"
	}

	metrics.mu.Lock()
	metrics.requestsTotal++
	metrics.requests[reqKey{Pattern: pattern, Status: status}]++
	metrics.mu.Unlock()
}

func metricsIncAppError(stage, code string) {
	stage = orUnknown(strings.TrimSpace(stage))
	code = orUnknown(strings.TrimSpace(code))

	metrics.mu.Lock()
	metrics.appErrors[errKey{Stage: stage, Code: code}]++
	metrics.mu.Unlock()
}

func metricsIncLogin(ok bool) {
	metrics.mu.Lock()
	metrics.logins[ok]++
	metrics.mu.Unlock()
}

func orUnknown(s string) string {
	if s == "" {
		return "(unknown)"
	}
	return s
}

type sample struct {
	labels string
	n      uint64
}

// render writes the exposition text. Samples are sorted by label string so
// the output is stable.
func (m *metricsStore) render() string {
	m.mu.Lock()
	total := m.requestsTotal
	reqs := make([]sample, 0, len(m.requests))
	for k, n := range m.requests {
		reqs = append(reqs, sample{labels: labels("pattern", k.Pattern, "status", strconv.Itoa(k.Status)), n: n})
	}
	errs := make([]sample, 0, len(m.appErrors))
	for k, n := range m.appErrors {
		errs = append(errs, sample{labels: labels("stage", k.Stage, "code", k.Code), n: n})
	}
	logins := make([]sample, 0, len(m.logins))
	for ok, n := range m.logins {
		result := "failure"
		if ok {
			result = "success"
		}
		logins = append(logins, sample{labels: labels("result", result), n: n})
	}
	m.mu.Unlock()

	var b strings.Builder
	writeCounter(&b, "http_requests_total", "Total HTTP requests.", []sample{{n: total}})
	writeCounter(&b, "http_requests_by_pattern_total", "HTTP requests by ServeMux pattern and status.", reqs)
	writeCounter(&b, "app_errors_total", "Application errors returned to clients.", errs)
	writeCounter(&b, "logins_total", "Admin login attempts by result.", logins)
	return b.String()
}

func writeCounter(b *strings.Builder, name, help string, samples []sample) {
	sort.Slice(samples, func(i, j int) bool { return samples[i].labels < samples[j].labels })

	name = metricsPrefix + name
	b.WriteString("# HELP " + name + " " + help + "\n")
	b.WriteString("# TYPE " + name + " counter\n")
	for _, s := range samples {
		b.WriteString(name)
		b.WriteString(s.labels)
		b.WriteByte(' ')
		b.WriteString(strconv.FormatUint(s.n, 10))
		b.WriteByte('\n')
	}
}

// labels renders {k1="v1",k2="v2"} from alternating keys and values.
func labels(kv ...string) string {
	var b strings.Builder
	b.WriteByte('{')
	for i := 0; i+1 < len(kv); i += 2 {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(kv[i])
		b.WriteString(`="`)
		b.WriteString(promLabelEscape(kv[i+1]))
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String()
}

func handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	WriteText(w, http.StatusOK, metrics.render())
}

func promLabelEscape(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
