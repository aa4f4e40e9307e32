package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"studiobook/internal/models"
)

func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return fmt.Errorf("user is nil")
	}
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, `INSERT INTO users (username, role, entity_id, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?)`, user.Username, string(user.Role), user.EntityID, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %q: %w", user.Username, ErrDuplicate)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

func (db *DB) GetUser(ctx context.Context, id int64) (*models.User, error) {
	row := db.QueryRowContext(ctx, `SELECT id, username, role, entity_id, created_at, updated_at FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err != nil {
		return nil, notFound(err, "user", id)
	}
	return u, nil
}

// GetUserByUsername is used by the seed loader to keep reruns idempotent.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	row := db.QueryRowContext(ctx, `SELECT id, username, role, entity_id, created_at, updated_at FROM users WHERE username = ?`, username)
	u, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user %q: %w", username, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func (db *DB) UpdateUserRole(ctx context.Context, id int64, role models.Role) (*models.User, error) {
	result, err := db.ExecContext(ctx, `UPDATE users SET role = ?, updated_at = ? WHERE id = ?`, string(role), time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update user role: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return db.GetUser(ctx, id)
}

func (db *DB) CreateEntity(ctx context.Context, e *models.Entity) error {
	if e == nil {
		return fmt.Errorf("entity is nil")
	}
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, `INSERT INTO entities (name, created_at) VALUES (?, ?)`, e.Name, now)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("entity %q: %w", e.Name, ErrDuplicate)
		}
		return fmt.Errorf("failed to create entity: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	e.ID = id
	e.CreatedAt = now
	return nil
}

func (db *DB) GetEntity(ctx context.Context, id int64) (*models.Entity, error) {
	var e models.Entity
	err := db.QueryRowContext(ctx, `SELECT id, name, created_at FROM entities WHERE id = ?`, id).Scan(&e.ID, &e.Name, &e.CreatedAt)
	if err != nil {
		return nil, notFound(err, "entity", id)
	}
	return &e, nil
}

func (db *DB) ListEntities(ctx context.Context) ([]*models.Entity, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name, created_at FROM entities ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	defer rows.Close()

	var res []*models.Entity
	for rows.Next() {
		var e models.Entity
		if err := rows.Scan(&e.ID, &e.Name, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		res = append(res, &e)
	}
	return res, rows.Err()
}

func (db *DB) CreateReport(ctx context.Context, r *models.Report) error {
	if r == nil {
		return fmt.Errorf("report is nil")
	}
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, `INSERT INTO reports (user_id, phone, reason, created_at) VALUES (?, ?, ?, ?)`,
		r.UserID, r.Phone, r.Reason, now)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	r.ID = id
	r.CreatedAt = now
	return nil
}

func (db *DB) ListReports(ctx context.Context) ([]*models.Report, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, user_id, phone, reason, created_at FROM reports ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	var res []*models.Report
	for rows.Next() {
		var (
			r      models.Report
			userID sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &userID, &r.Phone, &r.Reason, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		if userID.Valid {
			id := userID.Int64
			r.UserID = &id
		}
		res = append(res, &r)
	}
	return res, rows.Err()
}

func scanUser(r rowScanner) (*models.User, error) {
	var (
		u        models.User
		role     string
		entityID sql.NullInt64
	)
	if err := r.Scan(&u.ID, &u.Username, &role, &entityID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	if entityID.Valid {
		id := entityID.Int64
		u.EntityID = &id
	}
	return &u, nil
}
