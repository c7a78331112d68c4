package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/basketrec/internal/config"
	"github.com/temcen/basketrec/pkg/models"
)

func TestParsePrivateLabelMode(t *testing.T) {
	tests := []struct {
		input   string
		want    PrivateLabelMode
		wantErr bool
	}{
		{"", PrivateLabelAny, false},
		{"any", PrivateLabelAny, false},
		{"SKIP_SOURCES", PrivateLabelSkipSources, false},
		{" only ", PrivateLabelOnly, false},
		{"sometimes", PrivateLabelAny, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePrivateLabelMode(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, "skip_sources", PrivateLabelSkipSources.String())
}

func TestCandidateGenerator_SimilarItems(t *testing.T) {
	snap := fixtureSnapshot(t)
	gen := NewCandidateGenerator(config.Default().Ranking)

	t.Run("OneSubstitutePerSource", func(t *testing.T) {
		// Sources in popularity order: 10, 12, 11.
		items, err := gen.SimilarItems(snap, 1, 3, PrivateLabelAny)
		require.NoError(t, err)
		assert.Equal(t, []int64{13, 14, 10}, items)
	})

	t.Run("LimitsSources", func(t *testing.T) {
		items, err := gen.SimilarItems(snap, 1, 1, PrivateLabelAny)
		require.NoError(t, err)
		assert.Equal(t, []int64{13}, items)
	})

	t.Run("SkipPrivateLabelSources", func(t *testing.T) {
		items, err := gen.SimilarItems(snap, 1, 3, PrivateLabelSkipSources)
		require.NoError(t, err)
		assert.Equal(t, []int64{13, 10}, items)
	})

	t.Run("PrivateLabelOnly", func(t *testing.T) {
		items, err := gen.SimilarItems(snap, 1, 3, PrivateLabelOnly)
		require.NoError(t, err)
		assert.Equal(t, []int64{15}, items)
	})

	t.Run("NoSubstituteWithoutNeighbours", func(t *testing.T) {
		// Item 14 only neighbours itself.
		items, err := gen.SimilarItems(snap, 3, 1, PrivateLabelAny)
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("UnknownUser", func(t *testing.T) {
		_, err := gen.SimilarItems(snap, 99, 3, PrivateLabelAny)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("SentinelOnlyUserIsCold", func(t *testing.T) {
		_, err := gen.SimilarItems(snap, 5, 3, PrivateLabelAny)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestCandidateGenerator_SimilarUsers(t *testing.T) {
	snap := fixtureSnapshot(t)
	gen := NewCandidateGenerator(config.Default().Ranking)

	t.Run("NeighbourPurchasesMinusOwnTop", func(t *testing.T) {
		// Neighbours 2, 4, 3 bought 13:4, 11:5, 10:1, 14:2, 15:1. The user's
		// own top (10, 11, 12) is removed.
		items, err := gen.SimilarUsers(snap, 1, 5)
		require.NoError(t, err)
		assert.Equal(t, []int64{13, 14, 15}, items)
	})

	t.Run("Truncates", func(t *testing.T) {
		items, err := gen.SimilarUsers(snap, 1, 2)
		require.NoError(t, err)
		assert.Equal(t, []int64{13, 14}, items)
	})

	t.Run("SelfIsExcluded", func(t *testing.T) {
		// User 2's only neighbour is user 1.
		items, err := gen.SimilarUsers(snap, 2, 5)
		require.NoError(t, err)
		assert.Equal(t, []int64{12, 11}, items)
	})

	t.Run("UnknownUser", func(t *testing.T) {
		_, err := gen.SimilarUsers(snap, 42, 5)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}
