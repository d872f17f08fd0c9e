package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vsinha/fruitalloc/pkg/application/dto"
)

const namespace = "fruitalloc"

// Collector records allocation pass metrics
type Collector struct {
	runs         *prometheus.CounterVec
	records      prometheus.Counter
	allocated    *prometheus.CounterVec
	shortfall    prometheus.Gauge
	shortBuckets prometheus.Gauge
	utilization  prometheus.Gauge
	duration     prometheus.Histogram
	gatherer     prometheus.Gatherer
}

// NewCollector creates the allocation metrics and registers them with reg.
// A nil reg uses a private registry.
func NewCollector(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	c := &Collector{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "allocation_runs_total",
				Help:      "Total number of allocation passes by outcome",
			},
			[]string{"outcome"},
		),
		records: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocation_records_total",
			Help:      "Total number of committed allocation records",
		}),
		allocated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "allocated_kg_total",
				Help:      "Kilograms committed by allocation passes per demand class",
			},
			[]string{"class"},
		),
		shortfall: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "shortfall_kg",
			Help:      "Kilograms of demand left unallocated by the last pass",
		}),
		shortBuckets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "short_buckets",
			Help:      "Number of demand buckets left short by the last pass",
		}),
		utilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stock_utilization_ratio",
			Help:      "Share of the stock snapshot held by allocations after the last pass",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "allocation_run_duration_seconds",
			Help:      "Duration of allocation passes",
			Buckets:   prometheus.DefBuckets,
		}),
		gatherer: reg,
	}

	reg.MustRegister(c.runs, c.records, c.allocated, c.shortfall, c.shortBuckets, c.utilization, c.duration)
	return c
}

// ObserveRun records the outcome of one allocation pass
func (c *Collector) ObserveRun(result *dto.AllocationResult) {
	c.duration.Observe(result.Summary.Duration.Seconds())
	if result.RolledBack {
		c.runs.WithLabelValues("rolled_back").Inc()
		return
	}

	c.runs.WithLabelValues("committed").Inc()
	c.records.Add(float64(len(result.Committed)))
	for class, kg := range result.Summary.AllocatedKg {
		c.allocated.WithLabelValues(class.String()).Add(kg.InexactFloat64())
	}
	c.shortfall.Set(result.Summary.ShortfallKg.InexactFloat64())
	c.shortBuckets.Set(float64(len(result.Shortfalls)))
	c.utilization.Set(result.Summary.Utilization)
}

// Handler serves the registered metrics
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
