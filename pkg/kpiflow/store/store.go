// Package store persists KPI formulas, asset links and evaluation results.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/randalmurphal/kpiflow/pkg/kpiflow/config"
)

// Store persists kpiflow records.
// Implementations must be safe for concurrent use.
type Store interface {
	// CreateKPI stores a new KPI and returns it with ID and CreatedAt set.
	// Returns ErrDuplicateName if a KPI with the same name exists.
	CreateKPI(ctx context.Context, kpi KPI) (KPI, error)

	// GetKPI retrieves a KPI by ID.
	// Returns ErrNotFound if it doesn't exist.
	GetKPI(ctx context.Context, id string) (KPI, error)

	// ListKPIs returns all KPIs in creation order.
	ListKPIs(ctx context.Context) ([]KPI, error)

	// LinkAsset links an asset to a KPI.
	// Returns ErrNotFound if the KPI doesn't exist and ErrAssetAlreadyLinked
	// if the asset is linked to any KPI already.
	LinkAsset(ctx context.Context, link Link) (Link, error)

	// LinkedKPI returns the KPI an asset is linked to.
	// Returns ErrNotFound if the asset has no link.
	LinkedKPI(ctx context.Context, assetID string) (KPI, error)

	// SaveResult stores an evaluation result.
	SaveResult(ctx context.Context, result Result) (Result, error)

	// ListResults returns results matching filter, oldest timestamp first.
	// Returns an empty slice (not error) if nothing matches.
	ListResults(ctx context.Context, filter ResultFilter) ([]Result, error)

	// DeleteResultsBefore removes results whose CreatedAt is before cutoff
	// and returns how many were removed.
	DeleteResultsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Close releases any resources (connections, files).
	Close() error
}

// KPI is a named formula.
type KPI struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Expression  string    `json:"expression"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Link ties an asset to the KPI evaluated for it.
type Link struct {
	ID      string `json:"id"`
	KPIID   string `json:"kpi"`
	AssetID string `json:"asset_id"`
}

// Result is a persisted evaluation outcome.
type Result struct {
	ID          string    `json:"id"`
	AssetID     string    `json:"asset_id"`
	AttributeID string    `json:"attribute_id"`
	Timestamp   time.Time `json:"timestamp"`
	Value       string    `json:"value"`
	CreatedAt   time.Time `json:"created_at"`
}

// ResultFilter narrows ListResults. Empty fields match everything.
type ResultFilter struct {
	AssetID     string
	AttributeID string
}

func (f ResultFilter) matches(r Result) bool {
	return (f.AssetID == "" || f.AssetID == r.AssetID) &&
		(f.AttributeID == "" || f.AttributeID == r.AttributeID)
}

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates a record doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateName indicates a KPI name is already taken.
	ErrDuplicateName = errors.New("kpi name already exists")

	// ErrAssetAlreadyLinked indicates the asset is linked to a KPI already.
	ErrAssetAlreadyLinked = errors.New("asset already linked to a kpi")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("store closed")
)

// Open creates a Store for the named driver. path is ignored by the memory
// driver; ":memory:" gives an in-memory database for the others.
func Open(driver, path string) (Store, error) {
	switch driver {
	case config.DriverMemory:
		return NewMemoryStore(), nil
	case config.DriverSQLite:
		return NewSQLiteStore(path)
	case config.DriverGorm:
		return NewGormStore(path)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

func newID() string {
	return uuid.New().String()
}

// now returns the current time truncated for stable round-trips through
// text columns.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
