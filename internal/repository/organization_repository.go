package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/clinic-manager/internal/database"
	"github.com/iliyamo/clinic-manager/internal/model"
)

// OrganizationRepo reads and writes the system-level organization
// directory.  It only accepts the default connection.
type OrganizationRepo struct{ conn *database.Conn }

func NewOrganizationRepo(conn *database.Conn) *OrganizationRepo {
	if conn == nil || !conn.IsDefault() {
		panic("repository: organization directory needs the default connection")
	}
	return &OrganizationRepo{conn: conn}
}

const orgColumns = "id, subdomain, name, email, status, created_at"

// Create inserts o and sets its id.  A taken subdomain yields ErrConflict.
func (r *OrganizationRepo) Create(ctx context.Context, o *model.Organization) error {
	o.Key = strings.ToLower(strings.TrimSpace(o.Key))
	if o.Status == "" {
		o.Status = model.OrgActive
	}
	res, err := r.conn.DB().ExecContext(ctx,
		"INSERT INTO organizations (subdomain, name, email, status) VALUES (?,?,?,?)",
		o.Key, o.Name, o.Email, o.Status)
	if err != nil {
		if database.IsDuplicate(err) {
			return fmt.Errorf("organization %q: %w", o.Key, ErrConflict)
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	o.ID = uint64(id)
	return nil
}

// GetByKey fetches an organization by subdomain key.
func (r *OrganizationRepo) GetByKey(ctx context.Context, key string) (model.Organization, error) {
	var o model.Organization
	err := r.conn.DB().QueryRowContext(ctx,
		"SELECT "+orgColumns+" FROM organizations WHERE subdomain=? LIMIT 1", key).
		Scan(&o.ID, &o.Key, &o.Name, &o.Email, &o.Status, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return o, fmt.Errorf("organization %q: %w", key, ErrNotFound)
	}
	return o, err
}

// List returns every organization ordered by key.
func (r *OrganizationRepo) List(ctx context.Context) ([]model.Organization, error) {
	rows, err := r.conn.DB().QueryContext(ctx, "SELECT "+orgColumns+" FROM organizations ORDER BY subdomain")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Organization
	for rows.Next() {
		var o model.Organization
		if err := rows.Scan(&o.ID, &o.Key, &o.Name, &o.Email, &o.Status, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// SetStatus changes an organization's status.
func (r *OrganizationRepo) SetStatus(ctx context.Context, key, status string) error {
	res, err := r.conn.DB().ExecContext(ctx, "UPDATE organizations SET status=? WHERE subdomain=?", status, key)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("organization %q: %w", key, ErrNotFound)
	}
	return nil
}

// Delete removes the directory row.
func (r *OrganizationRepo) Delete(ctx context.Context, key string) error {
	res, err := r.conn.DB().ExecContext(ctx, "DELETE FROM organizations WHERE subdomain=?", key)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("organization %q: %w", key, ErrNotFound)
	}
	return nil
}
