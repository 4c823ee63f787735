package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite" // registers the pure Go "sqlite" driver
)

// timeLayout is fixed width so text columns sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// SQLiteStore persists records to SQLite through database/sql.
// It is suitable for single-process production use.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore opens (creating if needed) the database at path.
// Use ":memory:" for a throwaway database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		// Every connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS kpis (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			expression TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS asset_links (
			id TEXT PRIMARY KEY,
			kpi_id TEXT NOT NULL REFERENCES kpis(id) ON DELETE CASCADE,
			asset_id TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS evaluation_results (
			id TEXT PRIMARY KEY,
			asset_id TEXT NOT NULL,
			attribute_id TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			value TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_results_asset ON evaluation_results(asset_id)`,
		`CREATE INDEX IF NOT EXISTS idx_results_created ON evaluation_results(created_at)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// CreateKPI implements Store.
func (s *SQLiteStore) CreateKPI(ctx context.Context, kpi KPI) (KPI, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return KPI{}, ErrStoreClosed
	}

	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM kpis WHERE name = ?`, kpi.Name).Scan(&n); err != nil {
		return KPI{}, fmt.Errorf("check kpi name: %w", err)
	}
	if n > 0 {
		return KPI{}, ErrDuplicateName
	}

	kpi.ID = newID()
	kpi.CreatedAt = now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kpis (id, name, expression, description, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, kpi.ID, kpi.Name, kpi.Expression, kpi.Description, kpi.CreatedAt.Format(timeLayout))
	if err != nil {
		return KPI{}, fmt.Errorf("insert kpi: %w", err)
	}
	return kpi, nil
}

// GetKPI implements Store.
func (s *SQLiteStore) GetKPI(ctx context.Context, id string) (KPI, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return KPI{}, ErrStoreClosed
	}
	return s.scanKPI(s.db.QueryRowContext(ctx, `
		SELECT id, name, expression, description, created_at
		FROM kpis WHERE id = ?
	`, id))
}

func (s *SQLiteStore) scanKPI(row interface{ Scan(...any) error }) (KPI, error) {
	var kpi KPI
	var created string
	err := row.Scan(&kpi.ID, &kpi.Name, &kpi.Expression, &kpi.Description, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return KPI{}, ErrNotFound
	}
	if err != nil {
		return KPI{}, fmt.Errorf("load kpi: %w", err)
	}
	if kpi.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return KPI{}, fmt.Errorf("load kpi: created_at: %w", err)
	}
	return kpi, nil
}

// ListKPIs implements Store.
func (s *SQLiteStore) ListKPIs(ctx context.Context) ([]KPI, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, expression, description, created_at
		FROM kpis ORDER BY rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("list kpis: %w", err)
	}
	defer rows.Close()

	kpis := []KPI{}
	for rows.Next() {
		kpi, err := s.scanKPI(rows)
		if err != nil {
			return nil, err
		}
		kpis = append(kpis, kpi)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate kpis: %w", err)
	}
	return kpis, nil
}

// LinkAsset implements Store.
func (s *SQLiteStore) LinkAsset(ctx context.Context, link Link) (Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Link{}, ErrStoreClosed
	}

	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM kpis WHERE id = ?`, link.KPIID).Scan(&n); err != nil {
		return Link{}, fmt.Errorf("check kpi: %w", err)
	}
	if n == 0 {
		return Link{}, ErrNotFound
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM asset_links WHERE asset_id = ?`, link.AssetID).Scan(&n); err != nil {
		return Link{}, fmt.Errorf("check asset link: %w", err)
	}
	if n > 0 {
		return Link{}, ErrAssetAlreadyLinked
	}

	link.ID = newID()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO asset_links (id, kpi_id, asset_id) VALUES (?, ?, ?)
	`, link.ID, link.KPIID, link.AssetID); err != nil {
		return Link{}, fmt.Errorf("insert asset link: %w", err)
	}
	return link, nil
}

// LinkedKPI implements Store.
func (s *SQLiteStore) LinkedKPI(ctx context.Context, assetID string) (KPI, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return KPI{}, ErrStoreClosed
	}
	return s.scanKPI(s.db.QueryRowContext(ctx, `
		SELECT k.id, k.name, k.expression, k.description, k.created_at
		FROM asset_links l JOIN kpis k ON k.id = l.kpi_id
		WHERE l.asset_id = ?
	`, assetID))
}

// SaveResult implements Store.
func (s *SQLiteStore) SaveResult(ctx context.Context, result Result) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Result{}, ErrStoreClosed
	}

	result.ID = newID()
	result.Timestamp = result.Timestamp.UTC().Truncate(time.Microsecond)
	result.CreatedAt = now()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO evaluation_results (id, asset_id, attribute_id, timestamp, value, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, result.ID, result.AssetID, result.AttributeID,
		result.Timestamp.Format(timeLayout), result.Value, result.CreatedAt.Format(timeLayout)); err != nil {
		return Result{}, fmt.Errorf("insert result: %w", err)
	}
	return result, nil
}

// ListResults implements Store.
func (s *SQLiteStore) ListResults(ctx context.Context, filter ResultFilter) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, asset_id, attribute_id, timestamp, value, created_at
		FROM evaluation_results
		WHERE (? = '' OR asset_id = ?) AND (? = '' OR attribute_id = ?)
		ORDER BY timestamp, rowid
	`, filter.AssetID, filter.AssetID, filter.AttributeID, filter.AttributeID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	results := []Result{}
	for rows.Next() {
		var r Result
		var ts, created string
		if err := rows.Scan(&r.ID, &r.AssetID, &r.AttributeID, &ts, &r.Value, &created); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if r.Timestamp, err = time.Parse(timeLayout, ts); err != nil {
			return nil, fmt.Errorf("scan result: timestamp: %w", err)
		}
		if r.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("scan result: created_at: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return results, nil
}

// DeleteResultsBefore implements Store.
func (s *SQLiteStore) DeleteResultsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM evaluation_results WHERE created_at < ?`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("delete results: %w", err)
	}
	return res.RowsAffected()
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
