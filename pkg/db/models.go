package db

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// User is an account row.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SessionRow is a persisted session snapshot. Snapshot holds the
// JSON-encoded engine state; SchemaVersion is duplicated in a column so
// incompatible rows can be skipped without decoding.
type SessionRow struct {
	UserID        string
	SchemaVersion int
	Snapshot      []byte
	UpdatedAt     time.Time
}

// RiskPresetRow is a named risk-settings preset.
type RiskPresetRow struct {
	Name               string
	MaxPositionSizePct float64
	StopLossPct        float64
	TakeProfitPct      float64
	MaxDailyLossPct    float64
	FeePct             float64
	SlippagePct        float64
}

// CreateUser inserts a new user row.
func (d *Database) CreateUser(ctx context.Context, u User) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP), COALESCE(?, CURRENT_TIMESTAMP))
	`, u.ID, strings.ToLower(u.Email), u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	return err
}

// GetUserByEmail returns a user by email or nil if not found.
func (d *Database) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, email, password_hash, created_at, updated_at
		FROM users WHERE email = ?
	`, strings.ToLower(email))
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// UpsertSession stores the latest snapshot for a user. Later writes
// win; the engine only ever publishes monotonically newer state.
func (d *Database) UpsertSession(ctx context.Context, row SessionRow) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO sessions (user_id, schema_version, snapshot, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE SET
			schema_version = excluded.schema_version,
			snapshot = excluded.snapshot,
			updated_at = CURRENT_TIMESTAMP
	`, row.UserID, row.SchemaVersion, string(row.Snapshot))
	return err
}

// GetSession loads the stored snapshot for a user.
func (d *Database) GetSession(ctx context.Context, userID string) (*SessionRow, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT user_id, schema_version, snapshot, updated_at
		FROM sessions WHERE user_id = ?
	`, userID)
	var (
		s    SessionRow
		blob string
	)
	if err := row.Scan(&s.UserID, &s.SchemaVersion, &blob, &s.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.Snapshot = []byte(blob)
	return &s, nil
}

// DeleteSession removes the stored snapshot for a user.
func (d *Database) DeleteSession(ctx context.Context, userID string) error {
	_, err := d.DB.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID)
	return err
}

// CountSessions returns the number of persisted sessions.
func (d *Database) CountSessions(ctx context.Context) (int, error) {
	var n int
	err := d.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n)
	return n, err
}

// UpsertRiskPresets syncs the named presets into the database in one
// transaction.
func (d *Database) UpsertRiskPresets(ctx context.Context, presets []RiskPresetRow) error {
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO risk_presets (
			name, max_position_size_pct, stop_loss_pct, take_profit_pct,
			max_daily_loss_pct, fee_pct, slippage_pct, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET
			max_position_size_pct = excluded.max_position_size_pct,
			stop_loss_pct = excluded.stop_loss_pct,
			take_profit_pct = excluded.take_profit_pct,
			max_daily_loss_pct = excluded.max_daily_loss_pct,
			fee_pct = excluded.fee_pct,
			slippage_pct = excluded.slippage_pct,
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range presets {
		if _, err := stmt.ExecContext(ctx,
			p.Name, p.MaxPositionSizePct, p.StopLossPct, p.TakeProfitPct,
			p.MaxDailyLossPct, p.FeePct, p.SlippagePct,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListRiskPresets returns all presets ordered by name.
func (d *Database) ListRiskPresets(ctx context.Context) ([]RiskPresetRow, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT name, max_position_size_pct, stop_loss_pct, take_profit_pct,
		       max_daily_loss_pct, fee_pct, slippage_pct
		FROM risk_presets ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RiskPresetRow
	for rows.Next() {
		var p RiskPresetRow
		if err := rows.Scan(&p.Name, &p.MaxPositionSizePct, &p.StopLossPct, &p.TakeProfitPct,
			&p.MaxDailyLossPct, &p.FeePct, &p.SlippagePct); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
