/*
Package sqlite provides the durable SQLite-backed store and catalog.

PURPOSE:
  Implements ledger.TxStore (balances + append-only entries) and
  ledger.Catalog (grades, locations) on SQLite. The same patterns apply
  to PostgreSQL; only minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  No UPDATE or DELETE ever touches ledger_entries or shipment_lines.
  Corrections are compensating entries.

KEY TABLES:
  grades, locations:  Catalog registry
  stock_balances:     One row per (grade, location); CHECK (cartons >= 0)
                      backstops the engine's validation
  ledger_entries:     Immutable ledger; seq (rowid) is the append order
  shipment_lines:     Per-line detail of shipment entries

ATOMICITY:
  WithTx wraps every engine write in one SQL transaction; repos-bound-
  to-tx style. Readers outside the transaction see pre-commit state.

WAL MODE:
  Opened with WAL so reporting reads do not block the single writer.

USAGE:
  st, err := sqlite.New("./data/cartons.db")
  ...
  defer st.Close()
  engine := ledger.NewEngine(st, st, cfg.ProductionLocation, cfg.StorageLocation, log)
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/packline/carton-ledger/ledger"
)

// conn is satisfied by both *sql.DB and *sql.Tx.
type conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements ledger.TxStore and ledger.Catalog on SQLite.
type Store struct {
	db *sql.DB
	queries
}

var (
	_ ledger.TxStore = (*Store)(nil)
	_ ledger.Catalog = (*Store)(nil)
)

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// An in-memory database exists per connection; a pool would
		// hand out empty databases.
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, queries: queries{q: db}}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS grades (
		id   TEXT PRIMARY KEY,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS locations (
		id   TEXT PRIMARY KEY,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS stock_balances (
		grade_id    TEXT NOT NULL,
		location_id TEXT NOT NULL,
		cartons     INTEGER NOT NULL DEFAULT 0 CHECK (cartons >= 0),
		PRIMARY KEY (grade_id, location_id)
	);

	-- Append-only ledger. seq is the stable total order.
	CREATE TABLE IF NOT EXISTS ledger_entries (
		seq         INTEGER PRIMARY KEY AUTOINCREMENT,
		id          TEXT NOT NULL UNIQUE,
		kind        TEXT NOT NULL,
		entry_date  TEXT NOT NULL,
		grade_id    TEXT,
		cartons     INTEGER,
		destination TEXT
	);

	CREATE TABLE IF NOT EXISTS shipment_lines (
		entry_id           TEXT NOT NULL REFERENCES ledger_entries(id),
		line_no            INTEGER NOT NULL,
		grade_id           TEXT NOT NULL,
		source_location_id TEXT NOT NULL,
		cartons            INTEGER NOT NULL,
		PRIMARY KEY (entry_id, line_no)
	);

	CREATE INDEX IF NOT EXISTS idx_entries_kind_date
		ON ledger_entries(kind, entry_date);
	CREATE INDEX IF NOT EXISTS idx_entries_grade
		ON ledger_entries(grade_id) WHERE grade_id IS NOT NULL;
	`
	_, err := s.db.Exec(schema)
	return err
}

// WithTx executes fn inside one SQL transaction. Commit on nil,
// rollback on error.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&txStore{queries{q: tx}}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore is the Store view bound to one transaction.
type txStore struct {
	queries
}

// =============================================================================
// QUERIES - Shared between Store (db-bound) and txStore (tx-bound)
// =============================================================================

type queries struct {
	q conn
}

func (s queries) Balance(ctx context.Context, grade ledger.GradeID, location ledger.LocationID) (int64, error) {
	var n int64
	err := s.q.QueryRowContext(ctx,
		`SELECT cartons FROM stock_balances WHERE grade_id = ? AND location_id = ?`,
		string(grade), string(location)).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return n, err
}

func (s queries) Balances(ctx context.Context) ([]ledger.StockBalance, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT grade_id, location_id, cartons FROM stock_balances ORDER BY grade_id, location_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.StockBalance
	for rows.Next() {
		var b ledger.StockBalance
		if err := rows.Scan(&b.Grade, &b.Location, &b.Cartons); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s queries) ApplyDelta(ctx context.Context, grade ledger.GradeID, location ledger.LocationID, delta int64) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO stock_balances (grade_id, location_id, cartons) VALUES (?, ?, ?)
		ON CONFLICT (grade_id, location_id)
		DO UPDATE SET cartons = stock_balances.cartons + excluded.cartons`,
		string(grade), string(location), delta)
	return err
}

func (s queries) Append(ctx context.Context, e *ledger.Entry) error {
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, kind, entry_date, grade_id, cartons, destination)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(e.ID), string(e.Kind), e.Date.String(),
		nullableID(string(e.Grade)), e.Cartons, e.Destination)
	if err != nil {
		return err
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.Seq = seq

	for i, l := range e.Lines {
		_, err := s.q.ExecContext(ctx, `
			INSERT INTO shipment_lines (entry_id, line_no, grade_id, source_location_id, cartons)
			VALUES (?, ?, ?, ?, ?)`,
			string(e.ID), i, string(l.Grade), string(l.Source), l.Cartons)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s queries) Entries(ctx context.Context, f ledger.EntryFilter) ([]ledger.Entry, error) {
	// Kind and dates narrow in SQL; the grade filter needs shipment
	// lines loaded first, so ledger.EntryFilter finishes the job.
	query := `SELECT seq, id, kind, entry_date, COALESCE(grade_id, ''), COALESCE(cartons, 0), COALESCE(destination, '')
		FROM ledger_entries WHERE 1=1`
	var args []any
	if f.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(f.Kind))
	}
	if !f.From.IsZero() {
		query += ` AND entry_date >= ?`
		args = append(args, f.From.String())
	}
	if !f.To.IsZero() {
		query += ` AND entry_date <= ?`
		args = append(args, f.To.String())
	}
	query += ` ORDER BY seq`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		var e ledger.Entry
		var dateStr string
		if err := rows.Scan(&e.Seq, &e.ID, &e.Kind, &dateStr, &e.Grade, &e.Cartons, &e.Destination); err != nil {
			return nil, err
		}
		if e.Date, err = ledger.ParseDate(dateStr); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []ledger.Entry
	for i := range entries {
		if entries[i].Kind == ledger.EntryShipment {
			var err error
			if entries[i].Lines, err = s.loadLines(ctx, entries[i].ID); err != nil {
				return nil, err
			}
		}
		if f.Matches(entries[i]) {
			out = append(out, entries[i])
		}
	}
	return out, nil
}

func (s queries) loadLines(ctx context.Context, id ledger.EntryID) ([]ledger.ShipmentLine, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT grade_id, source_location_id, cartons
		FROM shipment_lines WHERE entry_id = ? ORDER BY line_no`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []ledger.ShipmentLine
	for rows.Next() {
		var l ledger.ShipmentLine
		if err := rows.Scan(&l.Grade, &l.Source, &l.Cartons); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func nullableID(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// =============================================================================
// CATALOG - Grades and locations registry
// =============================================================================

// AddGrade registers or renames a grade.
func (s *Store) AddGrade(ctx context.Context, g ledger.Grade) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO grades (id, name) VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name`,
		string(g.ID), g.Name)
	return err
}

// AddLocation registers or renames a location.
func (s *Store) AddLocation(ctx context.Context, l ledger.Location) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO locations (id, name) VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name`,
		string(l.ID), l.Name)
	return err
}

func (s *Store) Grade(ctx context.Context, id ledger.GradeID) (ledger.Grade, error) {
	var g ledger.Grade
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM grades WHERE id = ?`, string(id)).
		Scan(&g.ID, &g.Name)
	if err == sql.ErrNoRows {
		return ledger.Grade{}, fmt.Errorf("grade %s: %w", id, ledger.ErrNotFound)
	}
	return g, err
}

func (s *Store) Location(ctx context.Context, id ledger.LocationID) (ledger.Location, error) {
	var l ledger.Location
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM locations WHERE id = ?`, string(id)).
		Scan(&l.ID, &l.Name)
	if err == sql.ErrNoRows {
		return ledger.Location{}, fmt.Errorf("location %s: %w", id, ledger.ErrNotFound)
	}
	return l, err
}

func (s *Store) Grades(ctx context.Context) ([]ledger.Grade, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM grades ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Grade
	for rows.Next() {
		var g ledger.Grade
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *Store) Locations(ctx context.Context) ([]ledger.Location, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM locations ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Location
	for rows.Next() {
		var l ledger.Location
		if err := rows.Scan(&l.ID, &l.Name); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
