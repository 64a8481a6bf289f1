// Package database opens connections to the proxy database for proxyhk.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "modernc.org/sqlite"             // SQLite driver

	"github.com/dbsmedya/proxyhk/internal/config"
	"github.com/dbsmedya/proxyhk/internal/sqlutil"
)

// Connector opens short-lived connection pools to the proxy database.
// The housekeeper opens one pool per cycle and closes it when the cycle ends.
type Connector struct {
	config     config.DatabaseConfig
	maxRetries int
	backoff    time.Duration
}

// NewConnector creates a new connector from configuration.
func NewConnector(cfg config.DatabaseConfig) *Connector {
	if cfg.Driver == "" {
		cfg.Driver = config.DriverMySQL
	}
	return &Connector{
		config:     cfg,
		maxRetries: 3,
		backoff:    time.Second,
	}
}

// Dialect returns the SQL dialect of the configured driver.
func (c *Connector) Dialect() sqlutil.Dialect {
	return sqlutil.DialectFor(c.config.Driver)
}

// Open establishes a verified connection pool, retrying with exponential backoff.
func (c *Connector) Open(ctx context.Context) (*sql.DB, error) {
	var db *sql.DB
	var err error

	backoff := c.backoff

	for i := 0; i < c.maxRetries; i++ {
		db, err = c.connect()
		if err == nil {
			// Verify connection
			if pingErr := db.PingContext(ctx); pingErr == nil {
				return db, nil
			} else {
				db.Close()
				err = pingErr
			}
		}

		if i < c.maxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
				backoff *= 2 // Exponential backoff
			}
		}
	}

	return nil, fmt.Errorf("failed to connect to %s database after %d retries: %w", c.config.Driver, c.maxRetries, err)
}

// connect creates a database handle without verifying it.
func (c *Connector) connect() (*sql.DB, error) {
	db, err := sql.Open(c.config.Driver, DSN(&c.config))
	if err != nil {
		return nil, err
	}

	if c.config.Driver == config.DriverSQLite {
		// A single writer avoids SQLITE_BUSY between pooled connections.
		db.SetMaxOpenConns(1)
	} else {
		if c.config.MaxConnections > 0 {
			db.SetMaxOpenConns(c.config.MaxConnections)
		}
		if c.config.MaxIdleConnections > 0 {
			db.SetMaxIdleConns(c.config.MaxIdleConnections)
		}
	}
	db.SetConnMaxLifetime(10 * time.Minute)

	return db, nil
}

// DSN builds the driver-specific data source name.
func DSN(cfg *config.DatabaseConfig) string {
	if cfg.Driver == config.DriverSQLite {
		return SQLiteDSN(cfg.Path)
	}
	return BuildDSN(cfg)
}

// SQLiteDSN constructs a modernc.org/sqlite DSN for a database file.
func SQLiteDSN(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)"
}

// BuildDSN constructs a MySQL DSN from configuration.
func BuildDSN(cfg *config.DatabaseConfig) string {
	// Format: user:password@tcp(host:port)/database?params
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
	)

	if cfg.Database != "" {
		dsn += cfg.Database
	}

	params := "?parseTime=true"
	switch cfg.TLS {
	case "disable":
		params += "&tls=false"
	case "required":
		params += "&tls=true"
	case "preferred", "":
		params += "&tls=preferred"
	}

	return dsn + params
}
