package matrix

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/basketrec/pkg/models"
)

func tx(user, item int64, qty float64) models.Transaction {
	return models.Transaction{UserID: user, ItemID: item, Quantity: qty, SalesValue: qty * 2, WeekNo: 1}
}

func TestBuild(t *testing.T) {
	txs := []models.Transaction{
		tx(30, 200, 1),
		tx(10, 100, 1),
		tx(10, 100, 5),
		tx(10, 200, 1),
		tx(20, models.SentinelItemID, 1),
		tx(40, models.SentinelItemID, 1),
		tx(40, 300, 2),
	}

	m, err := Build(txs)
	require.NoError(t, err)

	users, items := m.Dims()
	assert.Equal(t, 3, users, "user 20 only bought filtered items")
	assert.Equal(t, 3, items, "sentinel is not a column")

	ids := m.IDs()
	assert.Equal(t, []int64{10, 30, 40}, ids.Users())
	assert.Equal(t, []int64{100, 200, 300}, ids.Items())
	assert.False(t, ids.HasItem(models.SentinelItemID))
	assert.False(t, ids.HasUser(20))

	row, err := ids.UserRow(10)
	require.NoError(t, err)
	col, err := ids.ItemColumn(100)
	require.NoError(t, err)
	assert.Equal(t, 2.0, m.At(row, col), "cells count transactions, not quantity")

	row, _ = ids.UserRow(30)
	col, _ = ids.ItemColumn(100)
	assert.Equal(t, 0.0, m.At(row, col))

	assert.Equal(t, 4, m.NonZero())

	vec := m.UserVector(0)
	assert.Equal(t, []float64{2, 1, 0}, vec.RawVector().Data)
}

func TestBuild_RoundTrip(t *testing.T) {
	var txs []models.Transaction
	for u := int64(1); u <= 25; u++ {
		for i := int64(0); i < u%7+1; i++ {
			txs = append(txs, tx(u*13, 1000+i*u, 1))
		}
	}

	m, err := Build(txs)
	require.NoError(t, err)
	ids := m.IDs()

	for r := 0; r < ids.NumUsers(); r++ {
		back, err := ids.UserRow(ids.UserID(r))
		require.NoError(t, err)
		assert.Equal(t, r, back)
	}
	for c := 0; c < ids.NumItems(); c++ {
		back, err := ids.ItemColumn(ids.ItemID(c))
		require.NoError(t, err)
		assert.Equal(t, c, back)
	}
}

func TestBuild_Errors(t *testing.T) {
	_, err := Build(nil)
	assert.True(t, errors.Is(err, models.ErrData))

	_, err = Build([]models.Transaction{tx(1, models.SentinelItemID, 1)})
	assert.True(t, errors.Is(err, models.ErrData))
}

func TestIDMap_NotFound(t *testing.T) {
	m, err := Build([]models.Transaction{tx(1, 2, 1)})
	require.NoError(t, err)

	_, err = m.IDs().UserRow(99)
	assert.True(t, errors.Is(err, models.ErrNotFound))
	_, err = m.IDs().ItemColumn(99)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestIDMap_CopiesAreDetached(t *testing.T) {
	m, err := Build([]models.Transaction{tx(1, 2, 1), tx(3, 4, 1)})
	require.NoError(t, err)

	users := m.IDs().Users()
	users[0] = 999
	assert.Equal(t, int64(1), m.IDs().UserID(0))
}
