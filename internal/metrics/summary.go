package metrics

import (
	"encoding/json"
	"math"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Summary is a compact view of the registry.
type Summary struct {
	API      apiSummary     `json:"api"`
	Session  sessionSummary `json:"session"`
	Accounts accountSummary `json:"accounts"`
	Server   serverSummary  `json:"server"`
}

type apiSummary struct {
	TotalRequests   float64 `json:"totalRequests"`
	ErrorRate       float64 `json:"errorRate"`
	TransportErrors float64 `json:"transportErrors"`
	P50Latency      float64 `json:"p50Latency"`
	P95Latency      float64 `json:"p95Latency"`
}

type sessionSummary struct {
	Transitions  float64 `json:"transitions"`
	AuthFailures float64 `json:"authFailures"`
}

type accountSummary struct {
	Succeeded float64 `json:"succeeded"`
	Failed    float64 `json:"failed"`
}

type serverSummary struct {
	Requests      float64 `json:"requests"`
	ErrorRate     float64 `json:"errorRate"`
	Throttled     float64 `json:"throttled"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
}

// Summary gathers the registry and condenses it.
func (m *Metrics) Summary() (Summary, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return Summary{}, err
	}

	fam := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		fam[f.GetName()] = f
	}

	return Summary{
		API: apiSummary{
			TotalRequests:   sumCounter(fam["edusync_api_requests_total"]),
			ErrorRate:       computeErrorRate(fam["edusync_api_requests_total"], "status"),
			TransportErrors: sumCounter(fam["edusync_api_transport_errors_total"]),
			P50Latency:      histogramPercentile(fam["edusync_api_request_duration_seconds"], 0.50),
			P95Latency:      histogramPercentile(fam["edusync_api_request_duration_seconds"], 0.95),
		},
		Session: sessionSummary{
			Transitions:  sumCounter(fam["edusync_session_transitions_total"]),
			AuthFailures: sumCounter(fam["edusync_auth_failures_total"]),
		},
		Accounts: accountSummary{
			Succeeded: sumCounterWithLabel(fam["edusync_account_ops_total"], "result", "ok"),
			Failed:    sumCounterWithLabel(fam["edusync_account_ops_total"], "result", "error"),
		},
		Server: serverSummary{
			Requests:      sumCounter(fam["edusync_http_requests_total"]),
			ErrorRate:     computeErrorRate(fam["edusync_http_requests_total"], "status_code"),
			Throttled:     sumCounter(fam["edusync_rate_limit_rejections_total"]),
			UptimeSeconds: float64(time.Now().Unix()) - gaugeValue(fam["edusync_start_time_seconds"]),
		},
	}, nil
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SummaryHandler serves Summary as JSON.
func (m *Metrics) SummaryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := m.Summary()
		if err != nil {
			http.Error(w, "failed to gather metrics", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache, no-store")
		_ = json.NewEncoder(w).Encode(s)
	}
}

// --- Prometheus metric helpers ---

func sumCounter(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	var total float64
	for _, m := range f.GetMetric() {
		if m.GetCounter() != nil {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func gaugeValue(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	ms := f.GetMetric()
	if len(ms) == 0 {
		return 0
	}
	if ms[0].GetGauge() != nil {
		return ms[0].GetGauge().GetValue()
	}
	return 0
}

func hasLabel(m *dto.Metric, name, value string) bool {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name && lp.GetValue() == value {
			return true
		}
	}
	return false
}

func sumCounterWithLabel(f *dto.MetricFamily, labelName, labelValue string) float64 {
	if f == nil {
		return 0
	}
	var total float64
	for _, m := range f.GetMetric() {
		if hasLabel(m, labelName, labelValue) && m.GetCounter() != nil {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

// computeErrorRate returns the share of samples whose status label is 4xx,
// 5xx or 0 (no response).
func computeErrorRate(f *dto.MetricFamily, statusLabel string) float64 {
	if f == nil {
		return 0
	}
	var total, errors float64
	for _, m := range f.GetMetric() {
		if m.GetCounter() == nil {
			continue
		}
		v := m.GetCounter().GetValue()
		total += v
		for _, lp := range m.GetLabel() {
			if lp.GetName() == statusLabel {
				code := lp.GetValue()
				if code == "0" || (len(code) > 0 && code[0] >= '4') {
					errors += v
				}
			}
		}
	}
	if total == 0 {
		return 0
	}
	return errors / total
}

// histogramPercentile computes a percentile from aggregated histogram buckets
// using linear interpolation.
func histogramPercentile(f *dto.MetricFamily, q float64) float64 {
	if f == nil {
		return 0
	}

	type bucket struct {
		upperBound      float64
		cumulativeCount uint64
	}
	var totalCount uint64
	bucketMap := make(map[float64]uint64)

	for _, m := range f.GetMetric() {
		h := m.GetHistogram()
		if h == nil {
			continue
		}
		totalCount += h.GetSampleCount()
		for _, b := range h.GetBucket() {
			bucketMap[b.GetUpperBound()] += b.GetCumulativeCount()
		}
	}

	if totalCount == 0 {
		return 0
	}

	buckets := make([]bucket, 0, len(bucketMap))
	for ub, count := range bucketMap {
		buckets = append(buckets, bucket{upperBound: ub, cumulativeCount: count})
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].upperBound < buckets[j].upperBound
	})

	rank := q * float64(totalCount)

	var prevBound float64
	var prevCount uint64
	for _, b := range buckets {
		if math.IsInf(b.upperBound, 1) {
			break
		}
		if float64(b.cumulativeCount) >= rank {
			bucketCount := b.cumulativeCount - prevCount
			if bucketCount == 0 {
				return b.upperBound
			}
			fraction := (rank - float64(prevCount)) / float64(bucketCount)
			return prevBound + fraction*(b.upperBound-prevBound)
		}
		prevBound = b.upperBound
		prevCount = b.cumulativeCount
	}

	for i := len(buckets) - 1; i >= 0; i-- {
		if !math.IsInf(buckets[i].upperBound, 1) {
			return buckets[i].upperBound
		}
	}
	return 0
}
