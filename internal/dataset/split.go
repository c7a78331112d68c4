package dataset

import "github.com/temcen/basketrec/pkg/models"

// MaxWeek returns the latest week in txs, or zero for an empty log.
func MaxWeek(txs []models.Transaction) int {
	maxWeek := 0
	for _, tx := range txs {
		if tx.WeekNo > maxWeek {
			maxWeek = tx.WeekNo
		}
	}
	return maxWeek
}

// SplitByWeek holds out the last holdoutWeeks weeks: transactions with
// week_no > max_week - holdoutWeeks go to test, the rest to train.
func SplitByWeek(txs []models.Transaction, holdoutWeeks int) (train, test []models.Transaction) {
	cutoff := MaxWeek(txs) - holdoutWeeks
	for _, tx := range txs {
		if tx.WeekNo > cutoff {
			test = append(test, tx)
		} else {
			train = append(train, tx)
		}
	}
	return train, test
}
