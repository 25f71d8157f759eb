package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	providerCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "healthbridge_provider_calls_total",
		Help: "Extraction provider invocations by provider and result status.",
	}, []string{"provider", "status"})

	providerDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "healthbridge_provider_duration_seconds",
		Help:    "Extraction provider latency, including lab polling.",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 240},
	}, []string{"provider"})

	pipelineRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "healthbridge_pipeline_runs_total",
		Help: "Pipeline runs by document type and outcome.",
	}, []string{"document_type", "success"})

	breakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "healthbridge_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open).",
	}, []string{"name"})

	patientsUpserted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "healthbridge_patients_upserted_total",
		Help: "Patients written by the normalizer, split by created or updated.",
	}, []string{"result"})

	diseaseLinks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "healthbridge_patient_disease_links_created_total",
		Help: "New patient-disease associations.",
	})

	recordsSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "healthbridge_records_skipped_total",
		Help: "Extracted records dropped for lacking a patient name.",
	})

	cacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "healthbridge_result_cache_lookups_total",
		Help: "Result cache lookups by outcome.",
	}, []string{"outcome"})

	jobsHandled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "healthbridge_jobs_handled_total",
		Help: "Queued processing jobs by outcome.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(
		providerCalls,
		providerDuration,
		pipelineRuns,
		breakerState,
		patientsUpserted,
		diseaseLinks,
		recordsSkipped,
		cacheLookups,
		jobsHandled,
	)
}

func ObserveProviderCall(provider, status string, elapsed time.Duration) {
	providerCalls.WithLabelValues(provider, status).Inc()
	providerDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

func ObservePipelineRun(documentType string, success bool) {
	pipelineRuns.WithLabelValues(documentType, strconv.FormatBool(success)).Inc()
}

func ObserveBreakerState(name string, state int) {
	breakerState.WithLabelValues(name).Set(float64(state))
}

func ObservePatientUpsert(created bool) {
	if created {
		patientsUpserted.WithLabelValues("created").Inc()
		return
	}
	patientsUpserted.WithLabelValues("updated").Inc()
}

func ObserveDiseaseLink() {
	diseaseLinks.Inc()
}

func ObserveRecordSkipped() {
	recordsSkipped.Inc()
}

func ObserveCacheLookup(hit bool) {
	if hit {
		cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	cacheLookups.WithLabelValues("miss").Inc()
}

func ObserveJob(outcome string) {
	jobsHandled.WithLabelValues(outcome).Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}
