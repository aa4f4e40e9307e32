package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"studiobook/internal/calendar"
	"studiobook/internal/models"
)

const windowColumns = `id, engineer_id, weekday, date, start_min, end_min`

// GetSchedule returns every weekly window of the engineer plus the dated windows and
// closed days of the dates touched by [from, to). A zero range loads the template only.
func (db *DB) GetSchedule(ctx context.Context, engineerID int64, from, to time.Time) (*models.Schedule, error) {
	return loadSchedule(ctx, db, engineerID, from, to)
}

func loadSchedule(ctx context.Context, q querier, engineerID int64, from, to time.Time) (*models.Schedule, error) {
	schedule := &models.Schedule{EngineerID: engineerID}

	weekly, err := queryWindows(ctx, q, `SELECT `+windowColumns+` FROM availability_windows
        WHERE engineer_id = ? AND weekday IS NOT NULL ORDER BY weekday, start_min, id`, engineerID)
	if err != nil {
		return nil, err
	}
	schedule.Weekly = derefWindows(weekly)

	if from.IsZero() || to.IsZero() {
		return schedule, nil
	}

	// Date keys are widened by a day on each side so any location sees its own dates.
	lo := calendar.DateKey(from.UTC().AddDate(0, 0, -1))
	hi := calendar.DateKey(to.UTC().AddDate(0, 0, 1))

	dated, err := queryWindows(ctx, q, `SELECT `+windowColumns+` FROM availability_windows
        WHERE engineer_id = ? AND date IS NOT NULL AND date BETWEEN ? AND ?
        ORDER BY date, start_min, id`, engineerID, lo, hi)
	if err != nil {
		return nil, err
	}
	schedule.Dated = derefWindows(dated)

	rows, err := q.QueryContext(ctx, `SELECT date FROM closed_days
        WHERE engineer_id = ? AND date BETWEEN ? AND ? ORDER BY date`, engineerID, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("failed to list closed days: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan closed day: %w", err)
		}
		d, err := calendar.ParseDate(key)
		if err != nil {
			return nil, fmt.Errorf("failed to parse closed day %q: %w", key, err)
		}
		schedule.ClosedDays = append(schedule.ClosedDays, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list closed days: %w", err)
	}

	return schedule, nil
}

func (db *DB) GetAvailability(ctx context.Context, id int64) (*models.Availability, error) {
	row := db.QueryRowContext(ctx, `SELECT `+windowColumns+` FROM availability_windows WHERE id = ?`, id)
	a, err := scanWindow(row)
	if err != nil {
		return nil, notFound(err, "availability", id)
	}
	return a, nil
}

// ListDayWindows returns the windows declared for one weekday of the template or for
// one override date.
func (db *DB) ListDayWindows(ctx context.Context, engineerID int64, day models.Day) ([]*models.Availability, error) {
	if day.IsDate() {
		return queryWindows(ctx, db, `SELECT `+windowColumns+` FROM availability_windows
            WHERE engineer_id = ? AND date = ? ORDER BY start_min, id`, engineerID, calendar.DateKey(day.Date))
	}
	return queryWindows(ctx, db, `SELECT `+windowColumns+` FROM availability_windows
        WHERE engineer_id = ? AND weekday = ? ORDER BY start_min, id`, engineerID, int(day.Weekday))
}

// CreateAvailability inserts a window. A dated window reopens a date previously
// declared closed.
func (db *DB) CreateAvailability(ctx context.Context, a *models.Availability) error {
	if a == nil {
		return fmt.Errorf("availability is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := insertWindow(ctx, tx, a); err != nil {
		return err
	}
	if a.Day.IsDate() {
		if _, err := tx.ExecContext(ctx, `DELETE FROM closed_days WHERE engineer_id = ? AND date = ?`,
			a.EngineerID, calendar.DateKey(a.Day.Date)); err != nil {
			return fmt.Errorf("failed to reopen closed day: %w", err)
		}
	}

	return tx.Commit()
}

// UpdateAvailability rewrites a window in place. A dated window that moves away leaves
// its old date closed when nothing else was declared there.
func (db *DB) UpdateAvailability(ctx context.Context, a *models.Availability) error {
	if a == nil {
		return fmt.Errorf("availability is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	prev, err := scanWindow(tx.QueryRowContext(ctx, `SELECT `+windowColumns+` FROM availability_windows
        WHERE id = ? AND engineer_id = ?`, a.ID, a.EngineerID))
	if err != nil {
		return notFound(err, "availability", a.ID)
	}

	weekday, date := dayColumns(a.Day)
	if _, err := tx.ExecContext(ctx, `UPDATE availability_windows
        SET weekday = ?, date = ?, start_min = ?, end_min = ?, updated_at = ?
        WHERE id = ?`,
		weekday, date, int(a.Start), int(a.End), time.Now().UTC(), a.ID); err != nil {
		return fmt.Errorf("failed to update availability: %w", err)
	}

	if a.Day.IsDate() {
		if _, err := tx.ExecContext(ctx, `DELETE FROM closed_days WHERE engineer_id = ? AND date = ?`,
			a.EngineerID, calendar.DateKey(a.Day.Date)); err != nil {
			return fmt.Errorf("failed to reopen closed day: %w", err)
		}
	}
	if prev.Day.IsDate() && (!a.Day.IsDate() || calendar.DateKey(prev.Day.Date) != calendar.DateKey(a.Day.Date)) {
		if err := closeIfEmpty(ctx, tx, prev.EngineerID, calendar.DateKey(prev.Day.Date)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// DeleteAvailability removes a window. Deleting the last window of an override date
// closes that date instead of handing it back to the template.
func (db *DB) DeleteAvailability(ctx context.Context, id int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	prev, err := scanWindow(tx.QueryRowContext(ctx, `SELECT `+windowColumns+` FROM availability_windows WHERE id = ?`, id))
	if err != nil {
		return notFound(err, "availability", id)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM availability_windows WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete availability: %w", err)
	}
	if prev.Day.IsDate() {
		if err := closeIfEmpty(ctx, tx, prev.EngineerID, calendar.DateKey(prev.Day.Date)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func closeIfEmpty(ctx context.Context, tx *sql.Tx, engineerID int64, key string) error {
	var left int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM availability_windows WHERE engineer_id = ? AND date = ?`,
		engineerID, key).Scan(&left); err != nil {
		return fmt.Errorf("failed to count override windows: %w", err)
	}
	if left > 0 {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO closed_days (engineer_id, date, created_at) VALUES (?, ?, ?)`,
		engineerID, key, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to mark closed day: %w", err)
	}
	return nil
}

// ReplaceDayOverride makes ranges the complete schedule of date. An empty list marks
// the date closed.
func (db *DB) ReplaceDayOverride(ctx context.Context, engineerID int64, date time.Time, ranges []calendar.TimeRange) ([]*models.Availability, error) {
	day := models.DateDay(date)
	key := calendar.DateKey(day.Date)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := clearOverride(ctx, tx, engineerID, key); err != nil {
		return nil, err
	}

	created := make([]*models.Availability, 0, len(ranges))
	if len(ranges) == 0 {
		if _, err := tx.ExecContext(ctx, `INSERT INTO closed_days (engineer_id, date, created_at) VALUES (?, ?, ?)`,
			engineerID, key, time.Now().UTC()); err != nil {
			return nil, fmt.Errorf("failed to mark closed day: %w", err)
		}
	}
	for _, r := range ranges {
		a := &models.Availability{EngineerID: engineerID, Day: day, Start: r.Start, End: r.End}
		if err := insertWindow(ctx, tx, a); err != nil {
			return nil, err
		}
		created = append(created, a)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit override: %w", err)
	}
	return created, nil
}

// ClearDayOverride drops the override of date so the weekly template applies again.
func (db *DB) ClearDayOverride(ctx context.Context, engineerID int64, date time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := clearOverride(ctx, tx, engineerID, calendar.DateKey(date)); err != nil {
		return err
	}
	return tx.Commit()
}

func clearOverride(ctx context.Context, tx *sql.Tx, engineerID int64, key string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM availability_windows WHERE engineer_id = ? AND date = ?`, engineerID, key); err != nil {
		return fmt.Errorf("failed to clear override windows: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM closed_days WHERE engineer_id = ? AND date = ?`, engineerID, key); err != nil {
		return fmt.Errorf("failed to clear closed day: %w", err)
	}
	return nil
}

func insertWindow(ctx context.Context, tx *sql.Tx, a *models.Availability) error {
	weekday, date := dayColumns(a.Day)
	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, `INSERT INTO availability_windows
        (engineer_id, weekday, date, start_min, end_min, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.EngineerID, weekday, date, int(a.Start), int(a.End), now, now)
	if err != nil {
		return fmt.Errorf("failed to create availability: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	a.ID = id
	return nil
}

func dayColumns(d models.Day) (weekday sql.NullInt64, date sql.NullString) {
	if d.IsDate() {
		return weekday, sql.NullString{String: calendar.DateKey(d.Date), Valid: true}
	}
	return sql.NullInt64{Int64: int64(d.Weekday), Valid: true}, date
}

func queryWindows(ctx context.Context, q querier, query string, args ...any) ([]*models.Availability, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list availability: %w", err)
	}
	defer rows.Close()

	var res []*models.Availability
	for rows.Next() {
		a, err := scanWindow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan availability: %w", err)
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func scanWindow(r rowScanner) (*models.Availability, error) {
	var (
		a             models.Availability
		weekday       sql.NullInt64
		date          sql.NullString
		start, finish int
	)
	if err := r.Scan(&a.ID, &a.EngineerID, &weekday, &date, &start, &finish); err != nil {
		return nil, err
	}
	if date.Valid {
		d, err := calendar.ParseDate(date.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse window date %q: %w", date.String, err)
		}
		a.Day = models.DateDay(d)
	} else {
		a.Day = models.WeeklyDay(time.Weekday(weekday.Int64))
	}
	a.Start = calendar.Clock(start)
	a.End = calendar.Clock(finish)
	return &a, nil
}

func derefWindows(in []*models.Availability) []models.Availability {
	out := make([]models.Availability, 0, len(in))
	for _, a := range in {
		out = append(out, *a)
	}
	return out
}
