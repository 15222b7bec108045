package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/clinic-manager/internal/database"
)

// Filter is an equality condition on one column.
type Filter struct {
	Column string
	Value  any
}

// Where builds a Filter.
func Where(column string, value any) Filter { return Filter{Column: column, Value: value} }

// Query narrows a Find.  Zero Limit means no limit.
type Query struct {
	Filters []Filter
	Limit   int
	Offset  int
}

// Model is the data-access handle for one entity type inside the namespace
// of one connection.  It holds the *database.Conn itself, never a tenant
// name, so it cannot be pointed at another tenant after construction.
type Model[T any] struct {
	conn   *database.Conn
	schema *Schema[T]
	now    func() time.Time

	selectSQL string
	insertSQL string
	updateSQL string
	deleteSQL string
}

func newModel[T any](conn *database.Conn, s *Schema[T]) *Model[T] {
	cols := s.SelectColumns()
	insertCols := append(append([]string{}, s.Columns...), auditColumnNames...)
	sets := make([]string, 0, len(s.Columns)+2)
	for _, c := range s.Columns {
		sets = append(sets, c+"=?")
	}
	sets = append(sets, "updated_by=?", "updated_at=?")

	return &Model[T]{
		conn:      conn,
		schema:    s,
		now:       time.Now,
		selectSQL: "SELECT " + strings.Join(cols, ",") + " FROM " + s.Table,
		insertSQL: "INSERT INTO " + s.Table + " (" + strings.Join(insertCols, ",") + ") VALUES (" +
			placeholders(len(insertCols)) + ")",
		updateSQL: "UPDATE " + s.Table + " SET " + strings.Join(sets, ",") + " WHERE id=?",
		deleteSQL: "DELETE FROM " + s.Table + " WHERE id=?",
	}
}

// Conn returns the connection the model is bound to.
func (m *Model[T]) Conn() *database.Conn { return m.conn }

// Tenant returns the tenant key of the bound connection.
func (m *Model[T]) Tenant() string { return m.conn.Tenant() }

// Kind returns the entity kind.
func (m *Model[T]) Kind() Kind { return m.schema.Kind }

// Create inserts v, stamping actor as creator and last editor, and sets the
// generated id on v.
func (m *Model[T]) Create(ctx context.Context, actor uint64, v *T) error {
	a := m.schema.audit(v)
	now := m.now().UTC().Truncate(time.Second)
	a.CreatedBy, a.UpdatedBy, a.CreatedAt, a.UpdatedAt = actor, actor, now, now

	// pointer arguments are dereferenced by the driver
	args := append(m.schema.fields(v), a.CreatedBy, a.UpdatedBy, a.CreatedAt, a.UpdatedAt)
	res, err := m.conn.DB().ExecContext(ctx, m.insertSQL, args...)
	if err != nil {
		return m.translate("create", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return m.translate("create", err)
	}
	*m.schema.id(v) = uint64(id)
	return nil
}

// FindByID loads one row.
func (m *Model[T]) FindByID(ctx context.Context, id uint64) (T, error) {
	var v T
	row := m.conn.DB().QueryRowContext(ctx, m.selectSQL+" WHERE id=? LIMIT 1", id)
	if err := row.Scan(m.dest(&v)...); err != nil {
		return v, m.translate("find", err)
	}
	return v, nil
}

// FindOne returns the first row matching all filters.
func (m *Model[T]) FindOne(ctx context.Context, filters ...Filter) (T, error) {
	var zero T
	rows, err := m.Find(ctx, Query{Filters: filters, Limit: 1})
	if err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, fmt.Errorf("%s: %w", m.schema.Kind, ErrNotFound)
	}
	return rows[0], nil
}

// Find returns the rows matching q, ordered by id.
func (m *Model[T]) Find(ctx context.Context, q Query) ([]T, error) {
	where, args, err := m.where(q.Filters)
	if err != nil {
		return nil, err
	}
	stmt := m.selectSQL + where + " ORDER BY id"
	if q.Limit > 0 {
		stmt += " LIMIT ? OFFSET ?"
		args = append(args, q.Limit, q.Offset)
	}

	rows, err := m.conn.DB().QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, m.translate("find", err)
	}
	defer rows.Close()

	out := make([]T, 0)
	for rows.Next() {
		var v T
		if err := rows.Scan(m.dest(&v)...); err != nil {
			return nil, m.translate("scan", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, m.translate("find", err)
	}
	return out, nil
}

// Count returns the number of rows matching filters.
func (m *Model[T]) Count(ctx context.Context, filters ...Filter) (int, error) {
	where, args, err := m.where(filters)
	if err != nil {
		return 0, err
	}
	var n int
	if err := m.conn.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM "+m.schema.Table+where, args...).Scan(&n); err != nil {
		return 0, m.translate("count", err)
	}
	return n, nil
}

// Update writes every column of v and stamps actor as last editor.
// CreatedBy and CreatedAt are left as stored.
func (m *Model[T]) Update(ctx context.Context, actor uint64, v *T) error {
	a := m.schema.audit(v)
	now := m.now().UTC().Truncate(time.Second)

	args := append(m.schema.fields(v), actor, now, *m.schema.id(v))
	res, err := m.conn.DB().ExecContext(ctx, m.updateSQL, args...)
	if err != nil {
		return m.translate("update", err)
	}
	if err := m.expectRow("update", res); err != nil {
		return err
	}
	a.UpdatedBy, a.UpdatedAt = actor, now
	return nil
}

// UpdateByID is Update for the row id, whatever id v carries.
func (m *Model[T]) UpdateByID(ctx context.Context, actor, id uint64, v *T) error {
	*m.schema.id(v) = id
	return m.Update(ctx, actor, v)
}

// Delete removes the row with the given id.
func (m *Model[T]) Delete(ctx context.Context, id uint64) error {
	res, err := m.conn.DB().ExecContext(ctx, m.deleteSQL, id)
	if err != nil {
		return m.translate("delete", err)
	}
	return m.expectRow("delete", res)
}

func (m *Model[T]) expectRow(op string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return m.translate(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", op, m.schema.Kind, ErrNotFound)
	}
	return nil
}

func (m *Model[T]) dest(v *T) []any {
	a := m.schema.audit(v)
	d := make([]any, 0, len(m.schema.Columns)+5)
	d = append(d, m.schema.id(v))
	d = append(d, m.schema.fields(v)...)
	return append(d, &a.CreatedBy, &a.UpdatedBy, &a.CreatedAt, &a.UpdatedAt)
}

func (m *Model[T]) where(filters []Filter) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}
	conds := make([]string, 0, len(filters))
	args := make([]any, 0, len(filters))
	for _, f := range filters {
		if !m.schema.hasColumn(f.Column) {
			return "", nil, fmt.Errorf("%s.%s: %w", m.schema.Table, f.Column, ErrUnknownColumn)
		}
		conds = append(conds, f.Column+"=?")
		args = append(args, f.Value)
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func (m *Model[T]) translate(op string, err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s %s: %w", op, m.schema.Kind, ErrNotFound)
	case database.IsDuplicate(err):
		return fmt.Errorf("%s %s: %w", op, m.schema.Kind, ErrConflict)
	}
	return fmt.Errorf("%s %s in %s: %w", op, m.schema.Kind, m.conn.Namespace(), err)
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}
