package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hangle/salonbook/internal/models"
	"github.com/hangle/salonbook/internal/timekey"
)

// Stats accumulates the owner's today/this-month buckets in a single
// backward scan. Day and month boundaries are computed once up front; the
// scan stops at the first row older than the month start, which is sound
// because rows are appended in non-decreasing timestamp order.
func (l *Ledger) Stats(ctx context.Context, owner string) (models.Stats, error) {
	now := time.Now()
	todayKey := timekey.DayKey(now)
	monthStart := timekey.MonthStart(now)

	rows, err := l.table.Snapshot()
	if err != nil {
		return models.Stats{}, fmt.Errorf("read orders: %w", err)
	}

	var st models.Stats
	for i := len(rows) - 1; i >= 0; i-- {
		o := decodeRow(rows[i])
		if o.CreatedAt.Before(monthStart) {
			break
		}
		if !strings.EqualFold(o.OwnerEmail, owner) {
			continue
		}
		st.MonthRevenue += o.Amount
		st.TotalOrders++
		if timekey.DayKey(o.CreatedAt) == todayKey {
			st.TodayCount++
			st.TodayRevenue += o.Amount
		}
	}
	return st, nil
}
