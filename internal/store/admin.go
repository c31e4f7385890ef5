package store

import (
	"context"
	"fmt"
)

// The following insert helpers exist only to satisfy foreign-key integrity
// and to give tests and the CLI something to seed. Generic CRUD for
// organizations, users, projects, and devices is explicitly out of scope
// (spec.md §1); the sync engine only requires that these rows exist.

// InsertOrganization inserts a new organization row.
func (s *Store) InsertOrganization(ctx context.Context, o *Organization) error {
	settingsRaw, err := marshalJSON(o.Settings)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO organizations
		(id, slug, settings, storage_quota_mb, storage_used_mb, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?)`,
		o.ID, o.Slug, settingsRaw, o.StorageQuotaMB, o.StorageUsedMB, epochMS(o.CreatedAt), epochMS(o.UpdatedAt))
	if err != nil {
		return fmt.Errorf("store: insert organization: %w", err)
	}
	return nil
}

// InsertUser inserts a new user row.
func (s *Store) InsertUser(ctx context.Context, u *User) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO users
		(id, organization_id, email, role, created_at, updated_at)
		VALUES (?,?,?,?,?,?)`,
		u.ID, u.OrganizationID, u.Email, u.Role, epochMS(u.CreatedAt), epochMS(u.UpdatedAt))
	if err != nil {
		return fmt.Errorf("store: insert user: %w", err)
	}
	return nil
}

// InsertDevice inserts a new device row, registering it to a user.
func (s *Store) InsertDevice(ctx context.Context, d *Device) error {
	clockRaw, err := marshalClock(d.VectorClock)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO devices
		(id, user_id, device_fingerprint, vector_clock, is_active, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?)`,
		d.ID, d.UserID, d.DeviceFingerprint, clockRaw, boolToInt(d.IsActive), epochMS(d.CreatedAt), epochMS(d.UpdatedAt))
	if err != nil {
		return fmt.Errorf("store: insert device: %w", err)
	}
	return nil
}

// InsertProject inserts a new project row.
func (s *Store) InsertProject(ctx context.Context, p *Project) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO projects
		(id, organization_id, name, created_at, updated_at)
		VALUES (?,?,?,?,?)`,
		p.ID, p.OrganizationID, p.Name, epochMS(p.CreatedAt), epochMS(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("store: insert project: %w", err)
	}
	return nil
}
