package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// CheckFunc probes one dependency.
type CheckFunc func(ctx context.Context) error

type healthCheck struct {
	name     string
	critical bool
	check    CheckFunc
}

// HealthService aggregates dependency probes. A failing critical probe makes
// the service unhealthy; a failing non-critical one only degrades it.
type HealthService struct {
	mu      sync.RWMutex
	checks  []healthCheck
	timeout time.Duration
	logger  *logrus.Logger

	healthCheckStatus *prometheus.GaugeVec
	lastHealthCheck   *prometheus.GaugeVec
}

type HealthStatus struct {
	Status      string            `json:"status"`
	Timestamp   time.Time         `json:"timestamp"`
	Services    map[string]string `json:"services"`
	Critical    []string          `json:"critical_failures,omitempty"`
	NonCritical []string          `json:"non_critical_failures,omitempty"`
	Latency     time.Duration     `json:"latency,omitempty"`
}

func NewHealthService(reg prometheus.Registerer, logger *logrus.Logger) *HealthService {
	hs := &HealthService{
		timeout: 5 * time.Second,
		logger:  logger,
		healthCheckStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "basketrec_health_check_status",
			Help: "Health check status (1 = healthy, 0 = unhealthy)",
		}, []string{"service"}),
		lastHealthCheck: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "basketrec_health_check_timestamp",
			Help: "Timestamp of last health check",
		}, []string{"service"}),
	}

	hs.healthCheckStatus = register(reg, hs.healthCheckStatus, logger)
	hs.lastHealthCheck = register(reg, hs.lastHealthCheck, logger)
	return hs
}

// AddCheck registers a probe under name.
func (s *HealthService) AddCheck(name string, critical bool, check CheckFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks = append(s.checks, healthCheck{name: name, critical: critical, check: check})
}

func (s *HealthService) CheckHealth(ctx context.Context) *HealthStatus {
	start := time.Now()
	status := &HealthStatus{
		Timestamp: start.UTC(),
		Services:  make(map[string]string),
	}

	s.mu.RLock()
	checks := append([]healthCheck(nil), s.checks...)
	s.mu.RUnlock()

	for _, hc := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, s.timeout)
		err := hc.check(checkCtx)
		cancel()

		if err != nil {
			status.Services[hc.name] = StatusUnhealthy
			entry := s.logger.WithError(err).WithField("service", hc.name)
			if hc.critical {
				status.Critical = append(status.Critical, hc.name)
				entry.Error("Critical service is unhealthy")
			} else {
				status.NonCritical = append(status.NonCritical, hc.name)
				entry.Warn("Non-critical service is unhealthy")
			}
			s.UpdateHealthMetrics(hc.name, false)
			continue
		}
		status.Services[hc.name] = StatusHealthy
		s.UpdateHealthMetrics(hc.name, true)
	}

	sort.Strings(status.Critical)
	sort.Strings(status.NonCritical)

	switch {
	case len(status.Critical) > 0:
		status.Status = StatusUnhealthy
	case len(status.NonCritical) > 0:
		status.Status = StatusDegraded
	default:
		status.Status = StatusHealthy
	}
	status.Latency = time.Since(start)

	return status
}

func (s *HealthService) UpdateHealthMetrics(serviceName string, healthy bool) {
	if healthy {
		s.healthCheckStatus.WithLabelValues(serviceName).Set(1)
	} else {
		s.healthCheckStatus.WithLabelValues(serviceName).Set(0)
	}
	s.lastHealthCheck.WithLabelValues(serviceName).Set(float64(time.Now().Unix()))
}
