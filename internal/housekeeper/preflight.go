package housekeeper

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dbsmedya/proxyhk/internal/logger"
	"github.com/dbsmedya/proxyhk/internal/sqlutil"
)

// PreflightError represents a preflight check failure.
type PreflightError struct {
	Check   string
	Message string
	Tables  []string
}

func (e *PreflightError) Error() string {
	if len(e.Tables) > 0 {
		return fmt.Sprintf("%s: %s (tables: %v)", e.Check, e.Message, e.Tables)
	}
	return fmt.Sprintf("%s: %s", e.Check, e.Message)
}

// PreflightChecker runs read-only checks against the proxy database before
// the worker is started.
type PreflightChecker struct {
	db      *sql.DB
	dialect sqlutil.Dialect
	tables  []TableSpec
	logger  *logger.Logger
}

// NewPreflightChecker creates a checker for the given tables, defaulting to Tables.
func NewPreflightChecker(db *sql.DB, dialect sqlutil.Dialect, tables []TableSpec, log *logger.Logger) *PreflightChecker {
	if log == nil {
		log = logger.NewDefault()
	}
	if len(tables) == 0 {
		tables = Tables
	}
	return &PreflightChecker{
		db:      db,
		dialect: dialect,
		tables:  tables,
		logger:  log,
	}
}

// RunAllChecks verifies that the watermark table and every buffered table exist.
func (pc *PreflightChecker) RunAllChecks(ctx context.Context) error {
	pc.logger.Info("Running preflight checks...")

	existing, err := pc.listTables(ctx)
	if err != nil {
		return &PreflightError{
			Check:   "table_existence",
			Message: fmt.Sprintf("failed to list tables: %v", err),
		}
	}

	var missing []string
	required := append([]string{WatermarkTable}, pc.tableNames()...)
	for _, name := range required {
		if !existing[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &PreflightError{
			Check:   "table_existence",
			Message: "required tables are missing",
			Tables:  missing,
		}
	}

	pc.logger.Infof("Preflight checks passed: %d tables present", len(required))
	return nil
}

func (pc *PreflightChecker) listTables(ctx context.Context) (map[string]bool, error) {
	rows, err := pc.db.QueryContext(ctx, pc.dialect.TablesQuery())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables[name] = true
	}
	return tables, rows.Err()
}

func (pc *PreflightChecker) tableNames() []string {
	names := make([]string, 0, len(pc.tables))
	for _, t := range pc.tables {
		names = append(names, t.TableName)
	}
	return names
}
