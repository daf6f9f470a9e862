package searcher

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/dshills/sessionsearch-mcp/internal/storage"
	"github.com/dshills/sessionsearch-mcp/pkg/types"
)

var benchWords = []string{
	"linker", "cache", "goroutine", "deadlock", "migration", "timeout",
	"retry", "schema", "parser", "benchmark", "allocation", "context",
}

// setupBenchStore fills a store with n sessions of msgs messages each
func setupBenchStore(b *testing.B, n, msgs int) *storage.SQLiteStore {
	b.Helper()

	store, err := storage.Open(filepath.Join(b.TempDir(), "index"))
	if err != nil {
		b.Fatalf("failed to open store: %v", err)
	}
	b.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	w, err := store.Writer(ctx)
	if err != nil {
		b.Fatalf("failed to acquire writer: %v", err)
	}
	defer w.Close()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		s := &types.Session{
			Path:      fmt.Sprintf("/sessions/p%d/s%05d.jsonl", i%10, i),
			SessionID: fmt.Sprintf("s%05d", i),
			Project:   fmt.Sprintf("/work/p%d", i%10),
			UpdatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		for j := 0; j < msgs; j++ {
			role := types.RoleUser
			if j%2 == 1 {
				role = types.RoleAssistant
			}
			s.Messages = append(s.Messages, types.Message{
				Ordinal: j,
				Role:    role,
				Text: fmt.Sprintf("message %d mentions %s and %s while debugging session %d",
					j, benchWords[(i+j)%len(benchWords)], benchWords[(i*j)%len(benchWords)], i),
			})
		}
		if err := w.InsertSession(ctx, s); err != nil {
			b.Fatalf("failed to insert session: %v", err)
		}
	}
	if err := w.Commit(); err != nil {
		b.Fatalf("failed to commit: %v", err)
	}
	if err := store.ReloadReaders(ctx); err != nil {
		b.Fatalf("failed to reload readers: %v", err)
	}

	return store
}

// BenchmarkSearch measures uncached queries against a populated index
func BenchmarkSearch(b *testing.B) {
	store := setupBenchStore(b, 1000, 20)
	s := NewSearcher(store)
	ctx := context.Background()

	queries := []struct {
		name string
		req  SearchRequest
	}{
		{"single_term", SearchRequest{Query: "deadlock"}},
		{"two_terms", SearchRequest{Query: "linker cache"}},
		{"prefix", SearchRequest{Query: "migra*"}},
		{"project_filter", SearchRequest{Query: "timeout", Filters: &storage.SearchFilters{Project: "/work/p3"}}},
	}

	for _, q := range queries {
		b.Run(q.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := s.Search(ctx, q.req); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkSearchCached measures the cache hit path
func BenchmarkSearchCached(b *testing.B) {
	store := setupBenchStore(b, 200, 10)
	s := NewSearcher(store)
	ctx := context.Background()
	req := SearchRequest{Query: "goroutine", UseCache: true}

	if _, err := s.Search(ctx, req); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		resp, err := s.Search(ctx, req)
		if err != nil {
			b.Fatal(err)
		}
		if !resp.CacheHit {
			b.Fatal("expected cache hit")
		}
	}
}
