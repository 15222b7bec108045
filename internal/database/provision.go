package database

import (
	"context"
	"database/sql"
)

// Provision creates the tenant database namespace on the server behind
// system.  It is a no-op when the database already exists.
func Provision(ctx context.Context, system *sql.DB, namespace string) error {
	_, err := system.ExecContext(ctx,
		"CREATE DATABASE IF NOT EXISTS "+quoteIdent(namespace)+" CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci")
	return wrap("create database", namespace, err)
}

// Drop removes a tenant database and everything in it.
func Drop(ctx context.Context, system *sql.DB, namespace string) error {
	_, err := system.ExecContext(ctx, "DROP DATABASE IF EXISTS "+quoteIdent(namespace))
	return wrap("drop database", namespace, err)
}

// Migrate applies the tenant tables to db.
func Migrate(ctx context.Context, db *sql.DB) error {
	return apply(ctx, db, TenantDDL)
}

// MigrateSystem applies the organization directory tables to db.
func MigrateSystem(ctx context.Context, db *sql.DB) error {
	return apply(ctx, db, SystemDDL)
}

func apply(ctx context.Context, db *sql.DB, stmts []string) error {
	for _, q := range stmts {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return wrap("migrate", firstLine(q), err)
		}
	}
	return nil
}

func firstLine(q string) string {
	for i, r := range q {
		if r == '\n' || r == '(' {
			return q[:i]
		}
	}
	return q
}
