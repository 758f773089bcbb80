package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wooden_dutch"

// Metrics holds the pipeline's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	Runs              *prometheus.CounterVec
	RunDuration       prometheus.Histogram
	ReviewScores      prometheus.Histogram
	Revisions         prometheus.Histogram
	ResearchHeadlines *prometheus.CounterVec
	ResearchFailures  *prometheus.CounterVec
	Images            *prometheus.CounterVec
	Publishes         *prometheus.CounterVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Pipeline runs by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a single pipeline run",
			Buckets:   []float64{5, 15, 30, 60, 120, 240, 480},
		}),
		ReviewScores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "review_score",
			Help:      "Editorial review scores",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}),
		Revisions: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "revisions_per_article",
			Help:      "Revision passes before an article left the review loop",
			Buckets:   []float64{0, 1, 2},
		}),
		ResearchHeadlines: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "research_headlines_total",
				Help:      "Headlines collected per research source",
			},
			[]string{"source"},
		),
		ResearchFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "research_failures_total",
				Help:      "Research source fetches that contributed nothing",
			},
			[]string{"source"},
		),
		Images: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "images_total",
				Help:      "Image stage results",
			},
			[]string{"result"},
		),
		Publishes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "publishes_total",
				Help:      "CMS publish attempts by result",
			},
			[]string{"result"},
		),
	}
	m.Registry.MustRegister(
		m.Runs,
		m.RunDuration,
		m.ReviewScores,
		m.Revisions,
		m.ResearchHeadlines,
		m.ResearchFailures,
		m.Images,
		m.Publishes,
	)
	return m
}

func (m *Metrics) ObserveRun(mode, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(mode, outcome).Inc()
	m.RunDuration.Observe(seconds)
}

func (m *Metrics) ObserveReview(score int) {
	if m == nil {
		return
	}
	m.ReviewScores.Observe(float64(score))
}

func (m *Metrics) ObserveRevisions(n int) {
	if m == nil {
		return
	}
	m.Revisions.Observe(float64(n))
}

// ObserveSource matches research.Aggregator's OnSource hook.
func (m *Metrics) ObserveSource(source string, headlines int, err error) {
	if m == nil {
		return
	}
	if err != nil || headlines == 0 {
		m.ResearchFailures.WithLabelValues(source).Inc()
		return
	}
	m.ResearchHeadlines.WithLabelValues(source).Add(float64(headlines))
}

func (m *Metrics) IncImage(result string) {
	if m == nil {
		return
	}
	m.Images.WithLabelValues(result).Inc()
}

func (m *Metrics) IncPublish(result string) {
	if m == nil {
		return
	}
	m.Publishes.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// WriteFile dumps the registry in textfile-collector format. Empty path is a no-op.
func (m *Metrics) WriteFile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}
