package metrics

import "github.com/prometheus/client_golang/prometheus"

// CacheSizeFunc reports the number of query cache entries without importing
// the query package.
type CacheSizeFunc func() int

// cacheCollector reads the cache size at scrape time.
type cacheCollector struct {
	size CacheSizeFunc
	desc *prometheus.Desc
}

// NewCacheCollector creates a collector exposing gmvdash_query_cache_entries.
func NewCacheCollector(size CacheSizeFunc) prometheus.Collector {
	return &cacheCollector{
		size: size,
		desc: prometheus.NewDesc(
			"gmvdash_query_cache_entries",
			"Number of entries in the query cache.",
			nil, nil,
		),
	}
}

func (c *cacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *cacheCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(c.size()))
}
