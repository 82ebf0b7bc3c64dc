package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/matheus3301/chitchat/internal/fanout"
)

// ErrNotFound is returned when an update targets a missing record.
var ErrNotFound = errors.New("not found")

const profileColumns = `id, name, avatar_url, email, status, role, created_at, updated_at`

func scanProfile(s interface{ Scan(...any) error }) (UserProfile, error) {
	var p UserProfile
	err := s.Scan(&p.ID, &p.Name, &p.AvatarURL, &p.Email, &p.Status, &p.Role, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// GetProfile returns the profile with the given id, or nil if there is none.
func (db *DB) GetProfile(ctx context.Context, id string) (*UserProfile, error) {
	p, err := scanProfile(db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", id, err)
	}
	return &p, nil
}

// CreateProfileIfAbsent inserts p unless a profile with the same id exists.
// created is false when the existing row was left untouched. Timestamps are
// stamped by the store; an empty status defaults to Online.
func (db *DB) CreateProfileIfAbsent(ctx context.Context, p UserProfile) (created bool, err error) {
	if err := p.Validate(); err != nil {
		return false, err
	}
	if p.Status == "" {
		p.Status = StatusOnline
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO profiles (id, name, avatar_url, email, status, role)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		p.ID, p.Name, p.AvatarURL, p.Email, p.Status, p.Role)
	if err != nil {
		return false, fmt.Errorf("create profile %s: %w", p.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create profile %s: %w", p.ID, err)
	}
	if n == 0 {
		return false, nil
	}
	db.notify(fanout.Profiles)
	return true, nil
}

// ListProfiles returns every profile ordered by name.
func (db *DB) ListProfiles(ctx context.Context) ([]UserProfile, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM profiles ORDER BY name COLLATE NOCASE ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []UserProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateProfileStatus sets the presence status of a profile.
func (db *DB) UpdateProfileStatus(ctx context.Context, id, status string) error {
	res, err := db.ExecContext(ctx, `
		UPDATE profiles
		SET status = ?, updated_at = CAST(ROUND((julianday('now') - 2440587.5) * 86400000.0) AS INTEGER)
		WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("update profile %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update profile %s: %w", id, ErrNotFound)
	}
	db.notify(fanout.Profiles)
	return nil
}
