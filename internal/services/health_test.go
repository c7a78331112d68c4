package services

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestHealthService_CheckHealth(t *testing.T) {
	ok := func(context.Context) error { return nil }
	fail := func(context.Context) error { return errors.New("down") }

	t.Run("Healthy", func(t *testing.T) {
		hs := NewHealthService(prometheus.NewRegistry(), testLogger())
		hs.AddCheck("model", true, ok)
		hs.AddCheck("redis", false, ok)

		status := hs.CheckHealth(context.Background())
		assert.Equal(t, StatusHealthy, status.Status)
		assert.Equal(t, map[string]string{"model": StatusHealthy, "redis": StatusHealthy}, status.Services)
	})

	t.Run("Degraded", func(t *testing.T) {
		hs := NewHealthService(prometheus.NewRegistry(), testLogger())
		hs.AddCheck("model", true, ok)
		hs.AddCheck("redis", false, fail)

		status := hs.CheckHealth(context.Background())
		assert.Equal(t, StatusDegraded, status.Status)
		assert.Equal(t, []string{"redis"}, status.NonCritical)
		assert.Equal(t, 0.0, testutil.ToFloat64(hs.healthCheckStatus.WithLabelValues("redis")))
	})

	t.Run("Unhealthy", func(t *testing.T) {
		hs := NewHealthService(prometheus.NewRegistry(), testLogger())
		hs.AddCheck("model", true, fail)
		hs.AddCheck("redis", false, ok)

		status := hs.CheckHealth(context.Background())
		assert.Equal(t, StatusUnhealthy, status.Status)
		assert.Equal(t, []string{"model"}, status.Critical)
		assert.Equal(t, 1.0, testutil.ToFloat64(hs.healthCheckStatus.WithLabelValues("redis")))
	})
}
