package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"studiobook/internal/models"

	sq "github.com/Masterminds/squirrel"
)

var bookingColumns = []string{
	"id", "user_id", "fonico_id", "studio_id", "start_at", "end_at",
	"notes", "phone", "instagram", "state", "created_at", "updated_at", "version",
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	bookings, err := selectBookings(ctx, db, sq.Select(bookingColumns...).From("bookings").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	if len(bookings) == 0 {
		return nil, fmt.Errorf("booking %d: %w", id, ErrNotFound)
	}
	return bookings[0], nil
}

// ListBookings returns bookings matching filter ordered by start. From/To select
// bookings overlapping the range.
func (db *DB) ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error) {
	q := sq.Select(bookingColumns...).From("bookings").OrderBy("start_at", "id")
	if filter.UserID != 0 {
		q = q.Where(sq.Eq{"user_id": filter.UserID})
	}
	if filter.FonicoID != 0 {
		q = q.Where(sq.Eq{"fonico_id": filter.FonicoID})
	}
	if filter.StudioID != 0 {
		q = q.Where(sq.Eq{"studio_id": filter.StudioID})
	}
	if filter.State != "" {
		q = q.Where(sq.Eq{"state": string(filter.State)})
	}
	if !filter.To.IsZero() {
		q = q.Where(sq.Lt{"start_at": formatTime(filter.To)})
	}
	if !filter.From.IsZero() {
		q = q.Where(sq.Gt{"end_at": formatTime(filter.From)})
	}
	return selectBookings(ctx, db, q)
}

// ListEngineerBookings returns active bookings of the engineer overlapping [from, to).
func (db *DB) ListEngineerBookings(ctx context.Context, engineerID int64, from, to time.Time) ([]*models.Booking, error) {
	return selectBookings(ctx, db, activeOverlapping("fonico_id", engineerID, from, to))
}

// ListStudioBookings returns active bookings of the studio overlapping [from, to).
func (db *DB) ListStudioBookings(ctx context.Context, studioID int64, from, to time.Time) ([]*models.Booking, error) {
	return selectBookings(ctx, db, activeOverlapping("studio_id", studioID, from, to))
}

// CreateBooking inserts the booking and its services. The engineer and studio overlap
// checks are repeated inside the transaction.
func (db *DB) CreateBooking(ctx context.Context, booking *models.Booking) error {
	if booking == nil {
		return fmt.Errorf("booking is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if booking.Active() {
		busy, err := overlapExists(ctx, tx, "fonico_id", booking.FonicoID, booking.Start, booking.End)
		if err != nil {
			return err
		}
		if busy {
			return ErrEngineerBusy
		}
		busy, err = overlapExists(ctx, tx, "studio_id", booking.StudioID, booking.Start, booking.End)
		if err != nil {
			return err
		}
		if busy {
			return ErrStudioBusy
		}
	}

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, `INSERT INTO bookings (
				user_id, fonico_id, studio_id, start_at, end_at, notes, phone, instagram,
				state, created_at, updated_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		booking.UserID,
		booking.FonicoID,
		booking.StudioID,
		formatTime(booking.Start),
		formatTime(booking.End),
		booking.Notes,
		booking.Phone,
		booking.Instagram,
		string(booking.State),
		now,
		now,
		1,
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking in tx: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id in tx: %w", err)
	}

	services := models.DedupServices(booking.Services)
	for i, sid := range services {
		if _, err := tx.ExecContext(ctx, `INSERT INTO booking_services (booking_id, position, service_id) VALUES (?, ?, ?)`,
			id, i, sid); err != nil {
			return fmt.Errorf("failed to insert booking service: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit booking: %w", err)
	}

	booking.ID = id
	booking.Services = services
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1
	return nil
}

// UpdateBookingState moves the booking to state if it is still at fromVersion.
func (db *DB) UpdateBookingState(ctx context.Context, id, fromVersion int64, state models.BookingState) (*models.Booking, error) {
	query := `UPDATE bookings SET state = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query, string(state), time.Now().UTC(), id, fromVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to update booking state: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		if _, err := db.GetBooking(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrConcurrentModification
	}
	return db.GetBooking(ctx, id)
}

func activeOverlapping(column string, id int64, from, to time.Time) sq.SelectBuilder {
	return sq.Select(bookingColumns...).From("bookings").
		Where(sq.Eq{column: id}).
		Where(sq.NotEq{"state": string(models.BookingCancelled)}).
		Where(sq.Lt{"start_at": formatTime(to)}).
		Where(sq.Gt{"end_at": formatTime(from)}).
		OrderBy("start_at", "id")
}

func overlapExists(ctx context.Context, tx *sql.Tx, column string, id int64, start, end time.Time) (bool, error) {
	query, args, err := sq.Select("COUNT(*)").From("bookings").
		Where(sq.Eq{column: id}).
		Where(sq.NotEq{"state": string(models.BookingCancelled)}).
		Where(sq.Lt{"start_at": formatTime(end)}).
		Where(sq.Gt{"end_at": formatTime(start)}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build overlap query: %w", err)
	}
	var count int
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check overlap in tx: %w", err)
	}
	return count > 0, nil
}

func selectBookings(ctx context.Context, qr querier, q sq.SelectBuilder) ([]*models.Booking, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build booking query: %w", err)
	}

	rows, err := qr.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	rows.Close()

	if err := attachServices(ctx, qr, bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

func attachServices(ctx context.Context, qr querier, bookings []*models.Booking) error {
	if len(bookings) == 0 {
		return nil
	}
	byID := make(map[int64]*models.Booking, len(bookings))
	ids := make([]int64, 0, len(bookings))
	for _, b := range bookings {
		b.Services = []int64{}
		byID[b.ID] = b
		ids = append(ids, b.ID)
	}

	query, args, err := sq.Select("booking_id", "service_id").From("booking_services").
		Where(sq.Eq{"booking_id": ids}).
		OrderBy("booking_id", "position").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build services query: %w", err)
	}
	rows, err := qr.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to list booking services: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var bookingID, serviceID int64
		if err := rows.Scan(&bookingID, &serviceID); err != nil {
			return fmt.Errorf("failed to scan booking service: %w", err)
		}
		if b, ok := byID[bookingID]; ok {
			b.Services = append(b.Services, serviceID)
		}
	}
	return rows.Err()
}

func scanBooking(r rowScanner) (*models.Booking, error) {
	var (
		b          models.Booking
		start, end string
		state      string
	)
	if err := r.Scan(&b.ID, &b.UserID, &b.FonicoID, &b.StudioID, &start, &end,
		&b.Notes, &b.Phone, &b.Instagram, &state, &b.CreatedAt, &b.UpdatedAt, &b.Version); err != nil {
		return nil, err
	}
	var err error
	if b.Start, err = parseTime(start); err != nil {
		return nil, err
	}
	if b.End, err = parseTime(end); err != nil {
		return nil, err
	}
	b.State = models.BookingState(state)
	return &b, nil
}
