package benchmarks

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/randalmurphal/kpiflow/pkg/kpiflow/store"
)

func createSQLiteStore(b *testing.B) *store.SQLiteStore {
	b.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(b.TempDir(), "bench.db"))
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { st.Close() })
	return st
}

func createGormStore(b *testing.B) *store.GormStore {
	b.Helper()
	st, err := store.NewGormStore(filepath.Join(b.TempDir(), "bench-gorm.db"))
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { st.Close() })
	return st
}

func benchResult(i int) store.Result {
	return store.Result{
		AssetID:     fmt.Sprintf("asset-%d", i%50),
		AttributeID: "output_1",
		Timestamp:   time.Now(),
		Value:       fmt.Sprint(i),
	}
}

func benchSaveResult(b *testing.B, st store.Store) {
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = st.SaveResult(ctx, benchResult(i))
	}
}

func benchListResults(b *testing.B, st store.Store) {
	ctx := context.Background()
	for i := 0; i < 1000; i++ {
		if _, err := st.SaveResult(ctx, benchResult(i)); err != nil {
			b.Fatal(err)
		}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = st.ListResults(ctx, store.ResultFilter{AssetID: "asset-7"})
	}
}

// BenchmarkMemoryStore_SaveResult measures in-memory result inserts.
func BenchmarkMemoryStore_SaveResult(b *testing.B) {
	benchSaveResult(b, store.NewMemoryStore())
}

// BenchmarkSQLiteStore_SaveResult measures SQLite result inserts.
func BenchmarkSQLiteStore_SaveResult(b *testing.B) {
	benchSaveResult(b, createSQLiteStore(b))
}

// BenchmarkGormStore_SaveResult measures gorm result inserts.
func BenchmarkGormStore_SaveResult(b *testing.B) {
	benchSaveResult(b, createGormStore(b))
}

// BenchmarkMemoryStore_ListResults filters 1000 results by asset.
func BenchmarkMemoryStore_ListResults(b *testing.B) {
	benchListResults(b, store.NewMemoryStore())
}

// BenchmarkSQLiteStore_ListResults filters 1000 results by asset.
func BenchmarkSQLiteStore_ListResults(b *testing.B) {
	benchListResults(b, createSQLiteStore(b))
}

// BenchmarkGormStore_ListResults filters 1000 results by asset.
func BenchmarkGormStore_ListResults(b *testing.B) {
	benchListResults(b, createGormStore(b))
}
