package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Dataset.Source)
	assert.True(t, cfg.Dataset.TrainOnStart)
	assert.Equal(t, 5000, cfg.Prefilter.TakeNPopular)
	assert.InDelta(t, 0.6, cfg.Prefilter.MaxBuyerShare, 1e-9)
	assert.InDelta(t, 0.01, cfg.Prefilter.MinBuyerShare, 1e-9)
	assert.Equal(t, 150, cfg.Prefilter.MinDepartmentSize)
	assert.Equal(t, 16, cfg.Prefilter.RecentWeeks)
	assert.Equal(t, 20, cfg.Models.Factors)
	assert.Equal(t, 15, cfg.Models.Iterations)
	assert.Equal(t, 1, cfg.Models.PersonalK)
	assert.True(t, cfg.Models.Weighting)
	assert.Equal(t, 5, cfg.Ranking.Count)
	assert.InDelta(t, 7.0, cfg.Ranking.CostlyPrice, 1e-9)
	assert.Equal(t, 6, cfg.Ranking.SimilarUsers)
	assert.Equal(t, 15*time.Minute, cfg.Caching.RecommendationsTTL)
	assert.Equal(t, []string{"GET", "POST", "OPTIONS"}, cfg.Security.CORS.AllowedMethods)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("RANKING_COUNT", "7")
	t.Setenv("LOGGING_LEVEL", "debug")

	cfg, err := Load()
	assert.NoError(t, err)
	assert.Equal(t, 7, cfg.Ranking.Count)
	assert.Equal(t, "debug", cfg.Logging.Level)
}
