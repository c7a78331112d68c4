package services

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Metrics holds the Prometheus collectors of the recommender.
type Metrics struct {
	requests       *prometheus.CounterVec
	latency        prometheus.Histogram
	shortLists     prometheus.Counter
	slotSources    *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	retrains       *prometheus.CounterVec
	retrainSeconds prometheus.Histogram
	modelUsers     prometheus.Gauge
	modelItems     prometheus.Gauge
}

// NewMetrics registers the collectors with reg. A collector that is already
// registered is reused, so repeated construction is safe.
func NewMetrics(reg prometheus.Registerer, logger *logrus.Logger) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "basketrec_recommendation_requests_total",
			Help: "Recommendation requests by user path (known or cold)",
		}, []string{"path"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "basketrec_recommendation_latency_seconds",
			Help:    "Recommendation latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}),
		shortLists: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "basketrec_short_lists_total",
			Help: "Lists returned with fewer items than requested",
		}),
		slotSources: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "basketrec_slot_source_total",
			Help: "Filled list slots by the pool that supplied them",
		}, []string{"source"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "basketrec_cache_lookups_total",
			Help: "Recommendation cache lookups by result",
		}, []string{"result"}),
		retrains: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "basketrec_retrains_total",
			Help: "Retrain attempts by outcome",
		}, []string{"outcome"}),
		retrainSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "basketrec_retrain_duration_seconds",
			Help:    "Wall time of successful retrains",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		modelUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "basketrec_model_users",
			Help: "Users in the installed snapshot",
		}),
		modelItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "basketrec_model_items",
			Help: "Items in the installed snapshot",
		}),
	}

	m.requests = register(reg, m.requests, logger)
	m.latency = register(reg, m.latency, logger)
	m.shortLists = register(reg, m.shortLists, logger)
	m.slotSources = register(reg, m.slotSources, logger)
	m.cacheLookups = register(reg, m.cacheLookups, logger)
	m.retrains = register(reg, m.retrains, logger)
	m.retrainSeconds = register(reg, m.retrainSeconds, logger)
	m.modelUsers = register(reg, m.modelUsers, logger)
	m.modelItems = register(reg, m.modelItems, logger)

	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C, logger *logrus.Logger) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		logger.WithError(err).Warn("Failed to register metric")
	}
	return c
}

func (m *Metrics) ObserveRecommendation(cold bool, elapsed time.Duration, result RerankResult) {
	path := "known"
	if cold {
		path = "cold"
	}
	m.requests.WithLabelValues(path).Inc()
	m.latency.Observe(elapsed.Seconds())
	if result.Short {
		m.shortLists.Inc()
	}
	for _, it := range result.Items {
		m.slotSources.WithLabelValues(it.Source).Inc()
	}
}

func (m *Metrics) ObserveCache(hit bool) {
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}

func (m *Metrics) ObserveRetrain(err error, elapsed time.Duration, users, items int) {
	if err != nil {
		m.retrains.WithLabelValues("failure").Inc()
		return
	}
	m.retrains.WithLabelValues("success").Inc()
	m.retrainSeconds.Observe(elapsed.Seconds())
	m.modelUsers.Set(float64(users))
	m.modelItems.Set(float64(items))
}
