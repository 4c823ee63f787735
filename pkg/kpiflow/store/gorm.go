package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// kpiRow is the gorm model for KPI.
type kpiRow struct {
	ID            string `gorm:"primaryKey"`
	Name          string `gorm:"uniqueIndex:idx_kpi_name"`
	Expression    string
	Description   string
	CreatedMicros int64 `gorm:"column:created_at"`
}

func (kpiRow) TableName() string { return "kpis" }

func (r kpiRow) toKPI() KPI {
	return KPI{
		ID:          r.ID,
		Name:        r.Name,
		Expression:  r.Expression,
		Description: r.Description,
		CreatedAt:   time.UnixMicro(r.CreatedMicros).UTC(),
	}
}

// linkRow is the gorm model for Link.
type linkRow struct {
	ID      string `gorm:"primaryKey"`
	KPIID   string `gorm:"column:kpi_id;index:idx_link_kpi"`
	AssetID string `gorm:"uniqueIndex:idx_link_asset"`
}

func (linkRow) TableName() string { return "asset_links" }

// resultRow is the gorm model for Result. Times are stored as unix
// microseconds so range queries compare numerically.
type resultRow struct {
	ID              string `gorm:"primaryKey"`
	AssetID         string `gorm:"index:idx_result_asset"`
	AttributeID     string
	TimestampMicros int64 `gorm:"column:timestamp"`
	Value           string
	CreatedMicros   int64 `gorm:"column:created_at;index:idx_result_created"`
}

func (resultRow) TableName() string { return "evaluation_results" }

func (r resultRow) toResult() Result {
	return Result{
		ID:          r.ID,
		AssetID:     r.AssetID,
		AttributeID: r.AttributeID,
		Timestamp:   time.UnixMicro(r.TimestampMicros).UTC(),
		Value:       r.Value,
		CreatedAt:   time.UnixMicro(r.CreatedMicros).UTC(),
	}
}

// GormStore persists records through gorm on the pure Go SQLite dialector.
type GormStore struct {
	db     *gorm.DB
	mu     sync.RWMutex
	closed bool
}

// NewGormStore opens the database at path and migrates the schema.
// Use ":memory:" for a throwaway database.
func NewGormStore(path string) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&kpiRow{}, &linkRow{}, &resultRow{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &GormStore{db: db}, nil
}

// CreateKPI implements Store.
func (g *GormStore) CreateKPI(ctx context.Context, kpi KPI) (KPI, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return KPI{}, ErrStoreClosed
	}

	db := g.db.WithContext(ctx)
	var n int64
	if err := db.Model(&kpiRow{}).Where("name = ?", kpi.Name).Count(&n).Error; err != nil {
		return KPI{}, fmt.Errorf("check kpi name: %w", err)
	}
	if n > 0 {
		return KPI{}, ErrDuplicateName
	}

	kpi.ID = newID()
	kpi.CreatedAt = now()
	row := kpiRow{
		ID:            kpi.ID,
		Name:          kpi.Name,
		Expression:    kpi.Expression,
		Description:   kpi.Description,
		CreatedMicros: kpi.CreatedAt.UnixMicro(),
	}
	if err := db.Create(&row).Error; err != nil {
		return KPI{}, fmt.Errorf("insert kpi: %w", err)
	}
	return kpi, nil
}

// GetKPI implements Store.
func (g *GormStore) GetKPI(ctx context.Context, id string) (KPI, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.closed {
		return KPI{}, ErrStoreClosed
	}
	return g.firstKPI(g.db.WithContext(ctx).Where("id = ?", id))
}

func (g *GormStore) firstKPI(q *gorm.DB) (KPI, error) {
	var row kpiRow
	err := q.First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return KPI{}, ErrNotFound
	}
	if err != nil {
		return KPI{}, fmt.Errorf("load kpi: %w", err)
	}
	return row.toKPI(), nil
}

// ListKPIs implements Store.
func (g *GormStore) ListKPIs(ctx context.Context) ([]KPI, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.closed {
		return nil, ErrStoreClosed
	}

	var rows []kpiRow
	if err := g.db.WithContext(ctx).Order("rowid").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list kpis: %w", err)
	}
	kpis := make([]KPI, 0, len(rows))
	for _, r := range rows {
		kpis = append(kpis, r.toKPI())
	}
	return kpis, nil
}

// LinkAsset implements Store.
func (g *GormStore) LinkAsset(ctx context.Context, link Link) (Link, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return Link{}, ErrStoreClosed
	}

	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&kpiRow{}).Where("id = ?", link.KPIID).Count(&n).Error; err != nil {
			return fmt.Errorf("check kpi: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		if err := tx.Model(&linkRow{}).Where("asset_id = ?", link.AssetID).Count(&n).Error; err != nil {
			return fmt.Errorf("check asset link: %w", err)
		}
		if n > 0 {
			return ErrAssetAlreadyLinked
		}

		link.ID = newID()
		row := linkRow{ID: link.ID, KPIID: link.KPIID, AssetID: link.AssetID}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert asset link: %w", err)
		}
		return nil
	})
	if err != nil {
		return Link{}, err
	}
	return link, nil
}

// LinkedKPI implements Store.
func (g *GormStore) LinkedKPI(ctx context.Context, assetID string) (KPI, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.closed {
		return KPI{}, ErrStoreClosed
	}

	db := g.db.WithContext(ctx)
	var link linkRow
	err := db.Where("asset_id = ?", assetID).First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return KPI{}, ErrNotFound
	}
	if err != nil {
		return KPI{}, fmt.Errorf("load asset link: %w", err)
	}
	return g.firstKPI(db.Where("id = ?", link.KPIID))
}

// SaveResult implements Store.
func (g *GormStore) SaveResult(ctx context.Context, result Result) (Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return Result{}, ErrStoreClosed
	}

	result.ID = newID()
	result.Timestamp = result.Timestamp.UTC().Truncate(time.Microsecond)
	result.CreatedAt = now()
	row := resultRow{
		ID:              result.ID,
		AssetID:         result.AssetID,
		AttributeID:     result.AttributeID,
		TimestampMicros: result.Timestamp.UnixMicro(),
		Value:           result.Value,
		CreatedMicros:   result.CreatedAt.UnixMicro(),
	}
	if err := g.db.WithContext(ctx).Create(&row).Error; err != nil {
		return Result{}, fmt.Errorf("insert result: %w", err)
	}
	return result, nil
}

// ListResults implements Store.
func (g *GormStore) ListResults(ctx context.Context, filter ResultFilter) ([]Result, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.closed {
		return nil, ErrStoreClosed
	}

	q := g.db.WithContext(ctx).Model(&resultRow{})
	if filter.AssetID != "" {
		q = q.Where("asset_id = ?", filter.AssetID)
	}
	if filter.AttributeID != "" {
		q = q.Where("attribute_id = ?", filter.AttributeID)
	}
	var rows []resultRow
	if err := q.Order("timestamp").Order("rowid").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	results := make([]Result, 0, len(rows))
	for _, r := range rows {
		results = append(results, r.toResult())
	}
	return results, nil
}

// DeleteResultsBefore implements Store.
func (g *GormStore) DeleteResultsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return 0, ErrStoreClosed
	}

	res := g.db.WithContext(ctx).
		Where("created_at < ?", cutoff.UnixMicro()).
		Delete(&resultRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete results: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Close implements Store.
func (g *GormStore) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil
	}
	g.closed = true
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
