package matrix

import (
	"fmt"

	"github.com/temcen/basketrec/pkg/models"
)

// IDMap translates between matrix indices and real ids. It is built once by
// Build and never mutated, so it is safe to share between goroutines.
type IDMap struct {
	rowToUser []int64
	userToRow map[int64]int
	colToItem []int64
	itemToCol map[int64]int
}

func newIDMap(users, items []int64) *IDMap {
	m := &IDMap{
		rowToUser: append([]int64(nil), users...),
		userToRow: make(map[int64]int, len(users)),
		colToItem: append([]int64(nil), items...),
		itemToCol: make(map[int64]int, len(items)),
	}
	for row, id := range m.rowToUser {
		m.userToRow[id] = row
	}
	for col, id := range m.colToItem {
		m.itemToCol[id] = col
	}
	return m
}

func (m *IDMap) NumUsers() int { return len(m.rowToUser) }

func (m *IDMap) NumItems() int { return len(m.colToItem) }

// UserRow returns the matrix row of userID, or an error wrapping
// models.ErrNotFound for cold users.
func (m *IDMap) UserRow(userID int64) (int, error) {
	row, ok := m.userToRow[userID]
	if !ok {
		return 0, fmt.Errorf("user %d: %w", userID, models.ErrNotFound)
	}
	return row, nil
}

// ItemColumn returns the matrix column of itemID.
func (m *IDMap) ItemColumn(itemID int64) (int, error) {
	col, ok := m.itemToCol[itemID]
	if !ok {
		return 0, fmt.Errorf("item %d: %w", itemID, models.ErrNotFound)
	}
	return col, nil
}

// UserID panics on an out-of-range row, like slice indexing.
func (m *IDMap) UserID(row int) int64 { return m.rowToUser[row] }

func (m *IDMap) ItemID(col int) int64 { return m.colToItem[col] }

func (m *IDMap) HasUser(userID int64) bool {
	_, ok := m.userToRow[userID]
	return ok
}

func (m *IDMap) HasItem(itemID int64) bool {
	_, ok := m.itemToCol[itemID]
	return ok
}

// Users returns a copy of the row order.
func (m *IDMap) Users() []int64 { return append([]int64(nil), m.rowToUser...) }

// Items returns a copy of the column order.
func (m *IDMap) Items() []int64 { return append([]int64(nil), m.colToItem...) }
