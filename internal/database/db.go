package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Settings describe the MySQL server shared by the system database and all
// tenant databases.
type Settings struct {
	User         string
	Pass         string
	Host         string
	Port         string
	MaxOpenConns int
}

// Open connects to the named database and verifies the connection.
func Open(ctx context.Context, s Settings, name string) (*sql.DB, error) {
	c := mysql.NewConfig()
	c.User = s.User
	c.Passwd = s.Pass
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(s.Host, s.Port)
	c.DBName = name
	// parseTime -> DATETIME as time.Time | UTC keeps times consistent |
	// clientFoundRows makes UPDATE report matched rows, not changed rows
	c.ParseTime = true
	c.Loc = time.UTC
	c.ClientFoundRows = true
	c.Params = map[string]string{"charset": "utf8mb4"}

	db, err := sql.Open("mysql", c.FormatDSN())
	if err != nil {
		return nil, err
	}

	maxOpen := s.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// MySQLOpener returns an Opener that opens tenant databases on the server
// described by s.
func MySQLOpener(s Settings) Opener {
	return func(ctx context.Context, namespace string) (*sql.DB, error) {
		return Open(ctx, s, namespace)
	}
}

// Namespace maps a tenant key onto its database name.  Anything outside
// [a-z0-9_] is replaced so the result is always a safe identifier.
func Namespace(prefix, key string) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, r := range strings.ToLower(key) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// IsDuplicate reports whether err is a MySQL unique-key violation.
func IsDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func wrap(op, target string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s %s: %w", op, target, err)
}
