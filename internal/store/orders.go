// Package store turns the flat Orders sheet into a query-able, per-owner,
// time-windowed ledger.
//
// Every scan runs backward from the most recently appended row. Rows are
// appended in non-decreasing timestamp order, which is what makes the
// early-exit in List and Stats sound: once a scan passes the oldest
// timestamp of interest it can stop instead of visiting the whole table.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/hangle/salonbook/internal/models"
	"github.com/hangle/salonbook/internal/sheet"
	"github.com/hangle/salonbook/internal/timekey"
)

var (
	ErrNotFound  = errors.New("order not found")
	ErrForbidden = errors.New("order owned by another identity")

	// ErrBadDate marks a caller-supplied day key List could not parse,
	// as opposed to a failure reading the table itself.
	ErrBadDate = errors.New("bad date")
)

const (
	// MaxLimit caps list responses regardless of what the caller requests.
	MaxLimit     = 100
	defaultLimit = 50

	maxNoteRunes = 500
)

// NameResolver supplies display names for owner identities at creation
// time. Lookups that fail only cost the denormalized name, never the row.
type NameResolver interface {
	DisplayName(ctx context.Context, email string) (string, error)
}

type Ledger struct {
	table *sheet.Table
	names NameResolver
}

func New(table *sheet.Table, names NameResolver) *Ledger {
	return &Ledger{table: table, names: names}
}

// Create appends one order row. The id, creation time and owner are always
// assigned here; any caller-supplied values for them are ignored, so a
// client can never write a row on someone else's behalf.
func (l *Ledger) Create(ctx context.Context, owner, category string, amount int64, note string) (models.Order, error) {
	if amount < 0 {
		amount = 0
	}
	if runes := []rune(note); len(runes) > maxNoteRunes {
		note = string(runes[:maxNoteRunes])
	}

	name, err := l.names.DisplayName(ctx, owner)
	if err != nil {
		slog.Warn("display name lookup failed, storing empty name", "owner", owner, "error", err)
		name = ""
	}

	o := models.Order{
		ID:         timekey.NewID(),
		CreatedAt:  time.Now(),
		OwnerEmail: owner,
		OwnerName:  name,
		Category:   category,
		Amount:     amount,
		Note:       note,
	}
	if err := l.table.Append(encodeRow(o)); err != nil {
		return models.Order{}, fmt.Errorf("append order: %w", err)
	}
	return o, nil
}

// List returns the owner's orders newest-first, optionally restricted to a
// single local calendar day, capped at MaxLimit rows.
func (l *Ledger) List(ctx context.Context, owner, dayKey string, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	var start, end time.Time
	filtered := dayKey != ""
	if filtered {
		var err error
		start, end, err = timekey.DayWindow(dayKey)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrBadDate, dayKey, err)
		}
	}

	rows, err := l.table.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("read orders: %w", err)
	}

	orders := make([]models.Order, 0, limit)
	for i := len(rows) - 1; i >= 0; i-- {
		o := decodeRow(rows[i])
		if filtered {
			if !o.CreatedAt.Before(end) {
				continue // newer than the requested day, keep scanning back
			}
			if o.CreatedAt.Before(start) {
				break // rows only get older from here
			}
		}
		if !strings.EqualFold(o.OwnerEmail, owner) {
			continue
		}
		orders = append(orders, o)
		if len(orders) == limit {
			break
		}
	}
	return orders, nil
}

// Delete physically removes the owner's row with the given id. A row owned
// by a different identity is left intact and reported as ErrForbidden; an
// absent id is ErrNotFound, which callers treat as "already gone" since a
// retried delete must never look like a failure.
func (l *Ledger) Delete(ctx context.Context, id, owner string) error {
	rows, err := l.table.Snapshot()
	if err != nil {
		return fmt.Errorf("read orders: %w", err)
	}
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i][0] != id {
			continue
		}
		if !strings.EqualFold(rows[i][2], owner) {
			return ErrForbidden
		}
		if err := l.table.DeleteRow(i); err != nil {
			return fmt.Errorf("delete order: %w", err)
		}
		return nil
	}
	return ErrNotFound
}

func encodeRow(o models.Order) []string {
	return []string{
		o.ID,
		o.CreatedAt.Format(timekey.CanonicalLayout),
		o.OwnerEmail,
		o.OwnerName,
		o.Category,
		strconv.FormatInt(o.Amount, 10),
		o.Note,
	}
}

// decodeRow tolerates whatever the spreadsheet hands back: timestamps in
// any supported format, amounts as numbers or formatted strings.
func decodeRow(row []string) models.Order {
	return models.Order{
		ID:         row[0],
		CreatedAt:  timekey.Normalize(row[1]),
		OwnerEmail: row[2],
		OwnerName:  row[3],
		Category:   row[4],
		Amount:     timekey.ParseAmount(row[5]),
		Note:       row[6],
	}
}
