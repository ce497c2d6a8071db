package metrics

import (
	"encoding/json"
	"math"
	"net/http"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Summary is the JSON body of /debug/summary.
type Summary struct {
	Dashboard httpSummary  `json:"dashboard"`
	API       httpSummary  `json:"api"`
	Queries   querySummary `json:"queries"`
	Mutations mutationInfo `json:"mutations"`
	Session   sessionInfo  `json:"session"`
	Live      liveInfo     `json:"live"`
	Server    serverInfo   `json:"server"`
}

type httpSummary struct {
	TotalRequests float64 `json:"totalRequests"`
	ErrorRate     float64 `json:"errorRate"`
	P50Latency    float64 `json:"p50Latency"`
	P95Latency    float64 `json:"p95Latency"`
}

type querySummary struct {
	Fetches       float64 `json:"fetches"`
	FetchErrors   float64 `json:"fetchErrors"`
	CacheHits     float64 `json:"cacheHits"`
	HitRatio      float64 `json:"hitRatio"`
	Discarded     float64 `json:"discarded"`
	Invalidations float64 `json:"invalidations"`
	Subscriptions float64 `json:"subscriptions"`
	Entries       float64 `json:"entries"`
}

type mutationInfo struct {
	Total  float64 `json:"total"`
	Errors float64 `json:"errors"`
}

type sessionInfo struct {
	Transitions    float64 `json:"transitions"`
	Expirations    float64 `json:"expirations"`
	LoginThrottled float64 `json:"loginThrottled"`
}

type liveInfo struct {
	Connections float64 `json:"connections"`
}

type serverInfo struct {
	StartTime     float64 `json:"startTime"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
}

// PrometheusHandler serves the registry in the Prometheus text format.
func (m *Metrics) PrometheusHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Handler serves a JSON summary computed from the gathered families.
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := m.Summarize()
		if err != nil {
			http.Error(w, "failed to gather metrics", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache, no-store")
		_ = json.NewEncoder(w).Encode(summary)
	}
}

// Summarize gathers the registry into a Summary.
func (m *Metrics) Summarize() (Summary, error) {
	gathered, err := m.registry.Gather()
	if err != nil {
		return Summary{}, err
	}
	fam := make(families, len(gathered))
	for _, f := range gathered {
		fam[f.GetName()] = f
	}

	fetches := fam.sum("gmvdash_query_fetches_total")
	hits := fam.sum("gmvdash_query_cache_hits_total")
	var hitRatio float64
	if reads := fetches + hits; reads > 0 {
		hitRatio = hits / reads
	}
	start := fam.first("gmvdash_server_start_time_seconds")

	return Summary{
		Dashboard: fam.http("gmvdash_http_requests_total", "gmvdash_http_request_duration_seconds", "status_code"),
		API:       fam.http("gmvdash_api_requests_total", "gmvdash_api_request_duration_seconds", "status"),
		Queries: querySummary{
			Fetches:       fetches,
			FetchErrors:   fam.sumWhere("gmvdash_query_fetches_total", "result", "error"),
			CacheHits:     hits,
			HitRatio:      hitRatio,
			Discarded:     fam.sum("gmvdash_query_discarded_total"),
			Invalidations: fam.sum("gmvdash_query_invalidations_total"),
			Subscriptions: fam.sum("gmvdash_query_subscriptions"),
			Entries:       fam.first("gmvdash_query_cache_entries"),
		},
		Mutations: mutationInfo{
			Total:  fam.sum("gmvdash_mutations_total"),
			Errors: fam.sumWhere("gmvdash_mutations_total", "result", "error"),
		},
		Session: sessionInfo{
			Transitions:    fam.sum("gmvdash_session_transitions_total"),
			Expirations:    fam.sumWhere("gmvdash_session_transitions_total", "state", "unauthenticated"),
			LoginThrottled: fam.first("gmvdash_login_throttled_total"),
		},
		Live: liveInfo{
			Connections: fam.first("gmvdash_live_connections"),
		},
		Server: serverInfo{
			StartTime:     start,
			UptimeSeconds: float64(time.Now().Unix()) - start,
		},
	}, nil
}

// families indexes gathered metric families by name. Missing families
// read as zero.
type families map[string]*dto.MetricFamily

// value is the counter or gauge value of one sample.
func value(m *dto.Metric) float64 {
	if c := m.GetCounter(); c != nil {
		return c.GetValue()
	}
	return m.GetGauge().GetValue()
}

func labelIs(m *dto.Metric, name, want string) bool {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue() == want
		}
	}
	return false
}

func (fs families) sum(name string) float64 {
	var total float64
	for _, m := range fs[name].GetMetric() {
		total += value(m)
	}
	return total
}

func (fs families) sumWhere(name, label, want string) float64 {
	var total float64
	for _, m := range fs[name].GetMetric() {
		if labelIs(m, label, want) {
			total += value(m)
		}
	}
	return total
}

// first reads an unlabelled counter or gauge.
func (fs families) first(name string) float64 {
	ms := fs[name].GetMetric()
	if len(ms) == 0 {
		return 0
	}
	return value(ms[0])
}

func (fs families) http(requests, durations, statusLabel string) httpSummary {
	return httpSummary{
		TotalRequests: fs.sum(requests),
		ErrorRate:     fs.errorRate(requests, statusLabel),
		P50Latency:    fs.percentile(durations, 0.50),
		P95Latency:    fs.percentile(durations, 0.95),
	}
}

// errorRate is the share of samples whose status label is 4xx, 5xx or
// "none" (no response).
func (fs families) errorRate(name, statusLabel string) float64 {
	var total, failed float64
	for _, m := range fs[name].GetMetric() {
		v := value(m)
		total += v
		for _, lp := range m.GetLabel() {
			if lp.GetName() != statusLabel {
				continue
			}
			if code := lp.GetValue(); code == "none" || code >= "4" {
				failed += v
			}
		}
	}
	if total == 0 {
		return 0
	}
	return failed / total
}

// percentile estimates quantile q of a histogram family by merging the
// buckets of every series and interpolating inside the bucket holding q.
func (fs families) percentile(name string, q float64) float64 {
	counts := map[float64]uint64{}
	var n uint64
	for _, m := range fs[name].GetMetric() {
		h := m.GetHistogram()
		if h == nil {
			continue
		}
		n += h.GetSampleCount()
		for _, b := range h.GetBucket() {
			if !math.IsInf(b.GetUpperBound(), 1) {
				counts[b.GetUpperBound()] += b.GetCumulativeCount()
			}
		}
	}
	if n == 0 || len(counts) == 0 {
		return 0
	}

	bounds := make([]float64, 0, len(counts))
	for ub := range counts {
		bounds = append(bounds, ub)
	}
	slices.Sort(bounds)

	rank := q * float64(n)
	lower, below := 0.0, uint64(0)
	for _, ub := range bounds {
		cum := counts[ub]
		if float64(cum) >= rank {
			if cum == below {
				return ub
			}
			return lower + (rank-float64(below))/float64(cum-below)*(ub-lower)
		}
		lower, below = ub, cum
	}
	return bounds[len(bounds)-1]
}
