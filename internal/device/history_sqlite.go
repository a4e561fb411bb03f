package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/indi-bridge/internal/indi"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	// historyTimeLayout keeps stored timestamps fixed-width so they sort
	// lexically in time order.
	historyTimeLayout = "2006-01-02T15:04:05.000000000Z"
)

// SQLiteHistoryRepository implements HistoryRepository using the
// property_history table.
type SQLiteHistoryRepository struct {
	db             *sql.DB
	maxRowsPerProp int
}

// NewSQLiteHistoryRepository creates a new SQLite history repository.
//
// Parameters:
//   - db: Open SQLite connection with migrations applied
//   - maxRowsPerProperty: Rows kept per property after each write; 0 keeps all
//
// Returns:
//   - *SQLiteHistoryRepository: Repository instance ready for use
func NewSQLiteHistoryRepository(db *sql.DB, maxRowsPerProperty int) *SQLiteHistoryRepository {
	return &SQLiteHistoryRepository{db: db, maxRowsPerProp: maxRowsPerProperty}
}

// Ensure SQLiteHistoryRepository implements HistoryRepository.
var _ HistoryRepository = (*SQLiteHistoryRepository)(nil)

// RecordChange inserts one row per element written by change, in a single
// transaction.
func (r *SQLiteHistoryRepository) RecordChange(ctx context.Context, change Change) (int, error) {
	rows := historyRows(change)
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning history transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO property_history (device, property, element, kind, value_num, value_text, state, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("preparing history insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		_, err := stmt.ExecContext(ctx,
			row.Device, row.Property, row.Element, string(row.Kind),
			nullFloat(row.ValueNum), nullString(row.ValueText),
			string(row.State), row.Timestamp.Format(historyTimeLayout),
		)
		if err != nil {
			return 0, fmt.Errorf("inserting history row: %w", err)
		}
	}

	if r.maxRowsPerProp > 0 {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM property_history
			 WHERE device = ? AND property = ? AND id NOT IN (
				SELECT id FROM property_history
				WHERE device = ? AND property = ?
				ORDER BY recorded_at DESC, id DESC
				LIMIT ?)`,
			change.Device, change.Property, change.Device, change.Property, r.maxRowsPerProp,
		)
		if err != nil {
			return 0, fmt.Errorf("trimming history: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing history: %w", err)
	}
	return len(rows), nil
}

// GetHistory returns recent entries for one property, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - device, property: Property identity
//   - limit: Maximum entries to return (default 50, max 200)
//
// Returns:
//   - []HistoryEntry: Entries ordered by recorded_at DESC
//   - error: nil on success, otherwise the underlying query error
func (r *SQLiteHistoryRepository) GetHistory(ctx context.Context, device, property string, limit int) ([]HistoryEntry, error) {
	if device == "" || property == "" {
		return nil, errors.New("device and property are required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device, property, element, kind, value_num, value_text, state, recorded_at
		 FROM property_history
		 WHERE device = ? AND property = ?
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT ?`,
		device, property, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0, limit)
	for rows.Next() {
		var (
			e          HistoryEntry
			kind       string
			state      string
			num        sql.NullFloat64
			text       sql.NullString
			recordedAt string
		)
		if err := rows.Scan(&e.ID, &e.Device, &e.Property, &e.Element, &kind, &num, &text, &state, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning history: %w", err)
		}
		e.Kind = indi.Kind(kind)
		e.State = indi.PropertyState(state)
		if num.Valid {
			v := num.Float64
			e.ValueNum = &v
		}
		if text.Valid {
			v := text.String
			e.ValueText = &v
		}
		ts, err := time.Parse(historyTimeLayout, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing recorded_at: %w", err)
		}
		e.Timestamp = ts
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history: %w", err)
	}
	return entries, nil
}

// Prune deletes entries recorded before now-olderThan.
//
// Returns:
//   - int64: Number of rows deleted
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteHistoryRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, errors.New("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(historyTimeLayout)
	result, err := r.db.ExecContext(ctx, "DELETE FROM property_history WHERE recorded_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting history: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
