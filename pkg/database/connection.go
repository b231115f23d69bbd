// Package database owns the MySQL connection of the persisted cache.
package database

import (
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/gocraft/dbr/v2"
	"github.com/pkg/errors"
)

// errors
var (
	ErrEmptyDSN = errors.New("database dsn is empty")
)

// Connect opens a dbr connection to MySQL and verifies it with a ping.
func Connect(dsn string) (*dbr.Connection, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrEmptyDSN
	}

	conn, err := dbr.Open("mysql", dsn, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database connection")
	}

	if err = conn.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping database")
	}

	return conn, nil
}
