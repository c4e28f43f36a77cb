package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder exposes Prometheus metrics for outbound API calls and sync jobs.
type Recorder struct {
	registry    *prometheus.Registry
	apiDuration *prometheus.HistogramVec
	apiTotal    *prometheus.CounterVec
	jobTotal    *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	records     *prometheus.CounterVec
}

// NewRecorder constructs a recorder on a private registry.
func NewRecorder() (*Recorder, error) {
	registry := prometheus.NewRegistry()

	apiDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "lmsync",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for outbound LMS API request attempts.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint", "method", "status"})

	apiTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lmsync",
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "Total number of outbound LMS API request attempts.",
	}, []string{"endpoint", "method", "status", "success"})

	jobTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lmsync",
		Subsystem: "etl",
		Name:      "jobs_total",
		Help:      "Total number of sync job runs by terminal status.",
	}, []string{"pipeline", "status"})

	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "lmsync",
		Subsystem: "etl",
		Name:      "job_duration_seconds",
		Help:      "End-to-end duration of sync job runs.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{"pipeline"})

	records := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lmsync",
		Subsystem: "etl",
		Name:      "records_total",
		Help:      "Records handled per pipeline stage.",
	}, []string{"pipeline", "stage"})

	for _, c := range []prometheus.Collector{apiDuration, apiTotal, jobTotal, jobDuration, records} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return &Recorder{
		registry:    registry,
		apiDuration: apiDuration,
		apiTotal:    apiTotal,
		jobTotal:    jobTotal,
		jobDuration: jobDuration,
		records:     records,
	}, nil
}

// RecordAPICall records one outbound request attempt. Status 0 means no
// response was received.
func (r *Recorder) RecordAPICall(endpoint, method string, status int, duration time.Duration, success bool) {
	statusLabel := strconv.Itoa(status)
	r.apiTotal.WithLabelValues(endpoint, method, statusLabel, strconv.FormatBool(success)).Inc()
	r.apiDuration.WithLabelValues(endpoint, method, statusLabel).Observe(duration.Seconds())
}

// RecordJob records a finished sync job run.
func (r *Recorder) RecordJob(pipeline, status string, duration time.Duration) {
	r.jobTotal.WithLabelValues(pipeline, status).Inc()
	r.jobDuration.WithLabelValues(pipeline).Observe(duration.Seconds())
}

// RecordStage records how many records a stage handled.
func (r *Recorder) RecordStage(pipeline, stage string, count int) {
	r.records.WithLabelValues(pipeline, stage).Add(float64(count))
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
