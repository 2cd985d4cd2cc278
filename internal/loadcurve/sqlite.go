package loadcurve

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/loadprofile/internal/monitoring"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteSource stores imported load curves in a SQLite database and serves
// them through the Source interface.
type SQLiteSource struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies any
// pending schema migrations.
func OpenSQLite(path string) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// A single connection keeps :memory: databases coherent across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	s := &SQLiteSource{db: db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// migrateUp runs all embedded migrations up to the latest version.
func (s *SQLiteSource) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	// Note: m is not closed because that would close the underlying DB connection.
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}

// ListCustomers returns every customer with at least one stored reading.
func (s *SQLiteSource) ListCustomers() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT customer_id FROM readings ORDER BY customer_id`)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ReadSeries returns a customer's readings in the order they were stored.
// Readings sharing a timestamp, such as the repeated hour at a DST change,
// are all kept.
func (s *SQLiteSource) ReadSeries(customerID string) ([]Reading, error) {
	rows, err := s.db.Query(
		`SELECT ts_unix, value FROM readings WHERE customer_id = ? ORDER BY seq`,
		customerID,
	)
	if err != nil {
		return nil, fmt.Errorf("read series %s: %w", customerID, err)
	}
	defer rows.Close()

	var readings []Reading
	for rows.Next() {
		var ts int64
		var v float64
		if err := rows.Scan(&ts, &v); err != nil {
			return nil, fmt.Errorf("read series %s: %w", customerID, err)
		}
		readings = append(readings, Reading{Timestamp: time.Unix(ts, 0).UTC(), Value: v})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(readings) == 0 {
		return nil, fmt.Errorf("customer %s: %w", customerID, ErrNotFound)
	}
	return readings, nil
}

// ReplaceSeries stores readings for a customer, replacing any existing
// rows, in a single transaction.
func (s *SQLiteSource) ReplaceSeries(ctx context.Context, customerID, sourcePath string, readings []Reading) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM readings WHERE customer_id = ?`, customerID); err != nil {
		return fmt.Errorf("delete %s: %w", customerID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO readings (customer_id, ts_unix, value) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range readings {
		if _, err := stmt.ExecContext(ctx, customerID, r.Timestamp.Unix(), r.Value); err != nil {
			return fmt.Errorf("insert %s@%s: %w", customerID, r.Timestamp.Format(TimestampLayout), err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO customers (customer_id, source_path, reading_count) VALUES (?, ?, ?)
		 ON CONFLICT(customer_id) DO UPDATE SET source_path = excluded.source_path,
		   reading_count = excluded.reading_count, imported_at = CURRENT_TIMESTAMP`,
		customerID, sourcePath, len(readings),
	); err != nil {
		return fmt.Errorf("record customer %s: %w", customerID, err)
	}

	return tx.Commit()
}

// ImportStats summarises an Import run.
type ImportStats struct {
	Imported int
	Readings int
	Skipped  int
}

// Import copies every series from src into dst. Customers whose series
// cannot be read are logged and skipped.
func Import(ctx context.Context, src Source, dst *SQLiteSource, progress *monitoring.Progress) (ImportStats, error) {
	var stats ImportStats
	ids, err := src.ListCustomers()
	if err != nil {
		return stats, err
	}
	if progress != nil {
		progress.Total = len(ids)
	}

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		readings, err := src.ReadSeries(id)
		if err != nil {
			monitoring.Logf("import: skipping customer %s: %v", id, err)
			stats.Skipped++
			progress.Step(i)
			continue
		}
		path := ""
		if cs, ok := src.(*CSVSource); ok {
			path = cs.Path(id)
		}
		if err := dst.ReplaceSeries(ctx, id, path, readings); err != nil {
			return stats, err
		}
		stats.Imported++
		stats.Readings += len(readings)
		progress.Step(i)
	}
	return stats, nil
}
