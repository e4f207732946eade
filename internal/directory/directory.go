// Package directory holds the identity directory: the single source of
// truth for who may call the API, plus display names for order rows.
//
// The table lives in its own sqlite file so an operator can edit it with
// salonctl (or any sqlite client) while the server is running. Lookups hit
// the database on every call, with no in-process cache, so an edit takes
// effect on the next request.
package directory

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/hangle/salonbook/internal/models"
)

type Directory struct {
	DB *sql.DB
}

func Open(dataSourceName string) (*Directory, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	d := &Directory{DB: db}
	if err := d.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

func (d *Directory) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS directory (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL,
		display_name TEXT DEFAULT '',
		enabled INTEGER NOT NULL DEFAULT 1
	);
	`
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("create directory schema: %w", err)
	}
	return nil
}

func (d *Directory) Close() error {
	return d.DB.Close()
}

// IsEnabled reports whether at least one enabled row exists for the email.
// Display duplicates are allowed; a single enabled row grants access.
func (d *Directory) IsEnabled(ctx context.Context, email string) (bool, error) {
	var one int
	query := `SELECT 1 FROM directory WHERE LOWER(email) = LOWER(?) AND enabled = 1 LIMIT 1`
	err := d.DB.QueryRowContext(ctx, query, email).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DisplayName returns the first non-empty display name recorded for the
// email, or "" when the email is unknown.
func (d *Directory) DisplayName(ctx context.Context, email string) (string, error) {
	var name string
	query := `SELECT display_name FROM directory WHERE LOWER(email) = LOWER(?) AND display_name != '' ORDER BY id LIMIT 1`
	err := d.DB.QueryRowContext(ctx, query, email).Scan(&name)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return name, nil
}

// Allow enables the email, inserting a row when none exists yet.
func (d *Directory) Allow(ctx context.Context, email, displayName string) error {
	res, err := d.DB.ExecContext(ctx,
		`UPDATE directory SET enabled = 1, display_name = CASE WHEN ? != '' THEN ? ELSE display_name END WHERE LOWER(email) = LOWER(?)`,
		displayName, displayName, email)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	_, err = d.DB.ExecContext(ctx,
		`INSERT INTO directory (email, display_name, enabled) VALUES (?, ?, 1)`, email, displayName)
	return err
}

// Deny disables every row for the email. The rows stay for display
// purposes; only the enabled flag controls access.
func (d *Directory) Deny(ctx context.Context, email string) error {
	_, err := d.DB.ExecContext(ctx,
		`UPDATE directory SET enabled = 0 WHERE LOWER(email) = LOWER(?)`, email)
	return err
}

func (d *Directory) List(ctx context.Context) ([]models.DirectoryEntry, error) {
	rows, err := d.DB.QueryContext(ctx,
		`SELECT id, email, display_name, enabled FROM directory ORDER BY email, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.DirectoryEntry
	for rows.Next() {
		var e models.DirectoryEntry
		var enabled int
		if err := rows.Scan(&e.ID, &e.Email, &e.DisplayName, &enabled); err != nil {
			return nil, err
		}
		e.Enabled = enabled == 1
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
