package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels successful runs and KPIs with at least one comparison row.
	OutcomeSuccess = "success"
	// OutcomeError labels failed runs or KPIs (fetch or reconciliation issues).
	OutcomeError = "error"
	// OutcomeNoData labels KPIs that reconciled to an empty table.
	OutcomeNoData = "no_data"
)

// Record stages.
const (
	StageInstants   = "instants"
	StageHistorical = "historical"
	StageCompared   = "compared"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kpi_recon",
			Name:      "runs_total",
			Help:      "Total number of reconciliation runs, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	runDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "kpi_recon",
			Name:      "run_seconds",
			Help:      "Reconciliation run latency in seconds, fetches included.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32},
		},
	)

	kpiOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kpi_recon",
			Name:      "kpi_outcomes_total",
			Help:      "Per-KPI reconciliation outcomes.",
		},
		[]string{"outcome"},
	)

	recordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kpi_recon",
			Name:      "records_total",
			Help:      "Records processed per pipeline stage.",
		},
		[]string{"stage"},
	)

	upstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kpi_recon",
			Name:      "upstream_requests_total",
			Help:      "Requests to the upstream KPI API by endpoint and status code.",
		},
		[]string{"endpoint", "code"},
	)
)

// Register attaches kpi-recon collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		runsTotal,
		runDurationSeconds,
		kpiOutcomesTotal,
		recordsTotal,
		upstreamRequestsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveRun records a run duration and outcome label.
func ObserveRun(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	runsTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	runDurationSeconds.Observe(duration.Seconds())
}

// ObserveKPI counts one per-KPI outcome.
func ObserveKPI(outcome string) {
	switch outcome {
	case OutcomeError, OutcomeNoData:
	default:
		outcome = OutcomeSuccess
	}
	kpiOutcomesTotal.WithLabelValues(outcome).Inc()
}

// AddRecords counts records seen by a stage.
func AddRecords(stage string, n int) {
	if n <= 0 {
		return
	}
	recordsTotal.WithLabelValues(stage).Add(float64(n))
}

// ObserveUpstream counts an upstream request. A zero code marks a transport failure.
func ObserveUpstream(endpoint string, code int) {
	label := "transport_error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	upstreamRequestsTotal.WithLabelValues(endpoint, label).Inc()
}
