package database

import (
	"context"
	"fmt"
	"time"

	"studiobook/internal/models"
)

const holidayColumns = `id, user_id, start_at, end_at, reason, state, created_at, updated_at`

const listHolidaysQuery = `SELECT ` + holidayColumns + ` FROM holidays
        WHERE user_id = ? AND start_at < ? AND end_at > ?
        ORDER BY start_at, id`

func (db *DB) GetHoliday(ctx context.Context, id int64) (*models.Holiday, error) {
	row := db.QueryRowContext(ctx, `SELECT `+holidayColumns+` FROM holidays WHERE id = ?`, id)
	h, err := scanHoliday(row)
	if err != nil {
		return nil, notFound(err, "holiday", id)
	}
	return h, nil
}

// ListHolidays returns holidays of the user in any state overlapping [from, to).
func (db *DB) ListHolidays(ctx context.Context, userID int64, from, to time.Time) ([]*models.Holiday, error) {
	return queryHolidays(ctx, db, listHolidaysQuery, userID, formatTime(to), formatTime(from))
}

func (db *DB) ListUserHolidays(ctx context.Context, userID int64) ([]*models.Holiday, error) {
	return queryHolidays(ctx, db, `SELECT `+holidayColumns+` FROM holidays
        WHERE user_id = ? ORDER BY start_at, id`, userID)
}

func (db *DB) CreateHoliday(ctx context.Context, h *models.Holiday) error {
	if h == nil {
		return fmt.Errorf("holiday is nil")
	}
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, `INSERT INTO holidays (user_id, start_at, end_at, reason, state, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		h.UserID, formatTime(h.Start), formatTime(h.End), h.Reason, string(h.State), now, now)
	if err != nil {
		return fmt.Errorf("failed to create holiday: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	h.ID = id
	h.CreatedAt = now
	h.UpdatedAt = now
	return nil
}

func (db *DB) UpdateHolidayState(ctx context.Context, id int64, state models.HolidayState) (*models.Holiday, error) {
	result, err := db.ExecContext(ctx, `UPDATE holidays SET state = ?, updated_at = ? WHERE id = ?`,
		string(state), time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update holiday state: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("holiday %d: %w", id, ErrNotFound)
	}
	return db.GetHoliday(ctx, id)
}

func queryHolidays(ctx context.Context, q querier, query string, args ...any) ([]*models.Holiday, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list holidays: %w", err)
	}
	defer rows.Close()

	var res []*models.Holiday
	for rows.Next() {
		h, err := scanHoliday(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan holiday: %w", err)
		}
		res = append(res, h)
	}
	return res, rows.Err()
}

func scanHoliday(r rowScanner) (*models.Holiday, error) {
	var (
		h          models.Holiday
		start, end string
		state      string
	)
	if err := r.Scan(&h.ID, &h.UserID, &start, &end, &h.Reason, &state, &h.CreatedAt, &h.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if h.Start, err = parseTime(start); err != nil {
		return nil, err
	}
	if h.End, err = parseTime(end); err != nil {
		return nil, err
	}
	h.State = models.HolidayState(state)
	return &h, nil
}
