package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps records in process memory. Data is lost when the
// process exits; use it for tests and the eval CLI.
type MemoryStore struct {
	mu      sync.RWMutex
	kpis    []KPI
	links   map[string]Link // assetID -> link
	results []Result
	closed  bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		links: make(map[string]Link),
	}
}

// CreateKPI implements Store.
func (m *MemoryStore) CreateKPI(_ context.Context, kpi KPI) (KPI, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return KPI{}, ErrStoreClosed
	}
	for _, existing := range m.kpis {
		if existing.Name == kpi.Name {
			return KPI{}, ErrDuplicateName
		}
	}

	kpi.ID = newID()
	kpi.CreatedAt = now()
	m.kpis = append(m.kpis, kpi)
	return kpi, nil
}

// GetKPI implements Store.
func (m *MemoryStore) GetKPI(_ context.Context, id string) (KPI, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return KPI{}, ErrStoreClosed
	}
	return m.findKPI(id)
}

func (m *MemoryStore) findKPI(id string) (KPI, error) {
	for _, kpi := range m.kpis {
		if kpi.ID == id {
			return kpi, nil
		}
	}
	return KPI{}, ErrNotFound
}

// ListKPIs implements Store.
func (m *MemoryStore) ListKPIs(_ context.Context) ([]KPI, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	out := make([]KPI, len(m.kpis))
	copy(out, m.kpis)
	return out, nil
}

// LinkAsset implements Store.
func (m *MemoryStore) LinkAsset(_ context.Context, link Link) (Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Link{}, ErrStoreClosed
	}
	if _, err := m.findKPI(link.KPIID); err != nil {
		return Link{}, err
	}
	if _, exists := m.links[link.AssetID]; exists {
		return Link{}, ErrAssetAlreadyLinked
	}

	link.ID = newID()
	m.links[link.AssetID] = link
	return link, nil
}

// LinkedKPI implements Store.
func (m *MemoryStore) LinkedKPI(_ context.Context, assetID string) (KPI, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return KPI{}, ErrStoreClosed
	}
	link, ok := m.links[assetID]
	if !ok {
		return KPI{}, ErrNotFound
	}
	return m.findKPI(link.KPIID)
}

// SaveResult implements Store.
func (m *MemoryStore) SaveResult(_ context.Context, result Result) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Result{}, ErrStoreClosed
	}
	result.ID = newID()
	result.Timestamp = result.Timestamp.UTC().Truncate(time.Microsecond)
	result.CreatedAt = now()
	m.results = append(m.results, result)
	return result, nil
}

// ListResults implements Store.
func (m *MemoryStore) ListResults(_ context.Context, filter ResultFilter) ([]Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	out := []Result{}
	for _, r := range m.results {
		if filter.matches(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// DeleteResultsBefore implements Store.
func (m *MemoryStore) DeleteResultsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrStoreClosed
	}
	kept := m.results[:0]
	var deleted int64
	for _, r := range m.results {
		if r.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	m.results = kept
	return deleted, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.kpis = nil
	m.links = nil
	m.results = nil
	return nil
}
