package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"studiobook/internal/domain"
	"studiobook/internal/models"
)

// querier is the read/write surface shared by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ReadSnapshot runs fn inside one read-only transaction so schedule, holidays and
// bookings are read from the same committed state.
func (db *DB) ReadSnapshot(ctx context.Context, fn func(domain.ScheduleReader) error) error {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(snapshot{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

var _ domain.SnapshotReader = (*DB)(nil)

type snapshot struct {
	tx *sql.Tx
}

func (s snapshot) GetSchedule(ctx context.Context, engineerID int64, from, to time.Time) (*models.Schedule, error) {
	return loadSchedule(ctx, s.tx, engineerID, from, to)
}

func (s snapshot) ListHolidays(ctx context.Context, userID int64, from, to time.Time) ([]*models.Holiday, error) {
	return queryHolidays(ctx, s.tx, listHolidaysQuery, userID, formatTime(to), formatTime(from))
}

func (s snapshot) ListEngineerBookings(ctx context.Context, engineerID int64, from, to time.Time) ([]*models.Booking, error) {
	return selectBookings(ctx, s.tx, activeOverlapping("fonico_id", engineerID, from, to))
}
