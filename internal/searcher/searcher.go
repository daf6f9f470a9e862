package searcher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/sessionsearch-mcp/internal/storage"
	"github.com/dshills/sessionsearch-mcp/pkg/types"
)

const (
	// DefaultLimit is used when a request does not set one
	DefaultLimit = 10
	// MaxLimit caps the number of results per request
	MaxLimit = 100
	// DefaultCacheSize is the number of cached responses
	DefaultCacheSize = 1000
	// DefaultCacheTTL bounds how long a cached response is served
	DefaultCacheTTL = time.Hour
)

// Index is the read side of the index store
type Index interface {
	SearchText(ctx context.Context, query string, limit int, filters *storage.SearchFilters) ([]storage.TextResult, error)

	// Generation changes whenever readers are reloaded
	Generation() uint64

	// DataVersion changes whenever committed content changes, including
	// commits made by another process
	DataVersion(ctx context.Context) (string, error)
}

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Query    string
	Limit    int
	Filters  *storage.SearchFilters
	UseCache bool // Whether to use query cache
	CacheTTL time.Duration
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	Results      []types.SearchResult
	TotalResults int
	Duration     time.Duration
	CacheHit     bool
	Generation   uint64 // Reader generation the results were read at
}

// cacheEntry represents a cached search response with expiration time
type cacheEntry struct {
	response  *SearchResponse
	expiresAt time.Time
}

// Searcher runs ranked full-text queries over indexed sessions
type Searcher struct {
	index   Index
	cache   *lru.Cache[[32]byte, *cacheEntry]
	cacheMu sync.RWMutex
}

// NewSearcher creates a new Searcher instance
func NewSearcher(index Index) *Searcher {
	// Cache will automatically evict least recently used entries
	cache, err := lru.New[[32]byte, *cacheEntry](DefaultCacheSize)
	if err != nil {
		// This should never happen with valid size parameter
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}

	return &Searcher{
		index: index,
		cache: cache,
	}
}

// Search performs a search based on the request parameters. Cached
// responses are keyed by the index's reader generation and data version, so
// results read before a reload or a commit are never served after it.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	// Validate request
	if err := validateRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}

	generation := s.index.Generation()

	var hash [32]byte
	if req.UseCache {
		version, err := s.index.DataVersion(ctx)
		if err != nil {
			slog.Debug("search cache bypassed", "error", err)
			req.UseCache = false
		} else {
			hash = computeQueryHash(req, generation, version)
		}
	}

	// Check cache if enabled
	if req.UseCache {
		if cached := s.checkCache(hash); cached != nil {
			cached.CacheHit = true
			cached.Duration = time.Since(startTime)
			return cached, nil
		}
	}

	textResults, err := s.index.SearchText(ctx, req.Query, req.Limit, req.Filters)
	if err != nil {
		return nil, err
	}

	// Convert to result format
	results := make([]types.SearchResult, len(textResults))
	for i, tr := range textResults {
		info := tr.Session
		results[i] = types.SearchResult{
			MessageID:      tr.MessageID,
			Rank:           i + 1,
			RelevanceScore: tr.BM25Score,
			Session:        &info,
			Role:           tr.Role,
			Snippet:        tr.Snippet,
		}
	}

	response := &SearchResponse{
		Results:      results,
		TotalResults: len(results),
		Duration:     time.Since(startTime),
		Generation:   generation,
	}

	// Store in cache if enabled
	if req.UseCache && len(response.Results) > 0 {
		s.storeInCache(hash, req.CacheTTL, response)
	}

	return response, nil
}

// validateRequest checks the query and fills in defaults
func validateRequest(req *SearchRequest) error {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return types.ErrEmptyQuery
	}

	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}

	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}

	if req.CacheTTL == 0 {
		req.CacheTTL = DefaultCacheTTL
	}

	return nil
}

// checkCache looks up a cached response, returning nil on miss or expiry
func (s *Searcher) checkCache(hash [32]byte) *SearchResponse {
	now := time.Now()

	s.cacheMu.RLock()
	entry, found := s.cache.Get(hash)
	if !found {
		s.cacheMu.RUnlock()
		return nil
	}

	if now.After(entry.expiresAt) {
		s.cacheMu.RUnlock()

		// Remove expired entry - need write lock
		s.cacheMu.Lock()
		s.cache.Remove(hash)
		s.cacheMu.Unlock()
		return nil
	}

	response := copySearchResponse(entry.response)
	s.cacheMu.RUnlock()

	return response
}

// storeInCache saves search results to cache
func (s *Searcher) storeInCache(hash [32]byte, ttl time.Duration, response *SearchResponse) {
	entry := &cacheEntry{
		response:  copySearchResponse(response),
		expiresAt: time.Now().Add(ttl),
	}

	s.cacheMu.Lock()
	s.cache.Add(hash, entry)
	s.cacheMu.Unlock()
}

// copySearchResponse creates a deep copy of a SearchResponse
func copySearchResponse(src *SearchResponse) *SearchResponse {
	if src == nil {
		return nil
	}

	dst := &SearchResponse{
		TotalResults: src.TotalResults,
		Duration:     src.Duration,
		CacheHit:     src.CacheHit,
		Generation:   src.Generation,
		Results:      make([]types.SearchResult, len(src.Results)),
	}

	for i, result := range src.Results {
		dst.Results[i] = result

		// SessionInfo holds only value fields, so a shallow copy is enough
		if result.Session != nil {
			sessionCopy := *result.Session
			dst.Results[i].Session = &sessionCopy
		}
	}

	return dst
}

// computeQueryHash computes a unique hash for a search request at a
// reader generation and data version
func computeQueryHash(req SearchRequest, generation uint64, version string) [32]byte {
	// Build deterministic string representation
	var data strings.Builder
	data.WriteString(req.Query)
	data.WriteString("|")
	data.WriteString(fmt.Sprintf("%d", req.Limit))
	data.WriteString("|")
	data.WriteString(fmt.Sprintf("%d", generation))
	data.WriteString("|")
	data.WriteString(version)

	if req.Filters != nil {
		data.WriteString("|filters:")
		data.WriteString(req.Filters.Project)
		data.WriteString("|")
		data.WriteString(req.Filters.PathPrefix)
		data.WriteString("|")
		data.WriteString(string(req.Filters.Role))
	}

	return sha256.Sum256([]byte(data.String()))
}

// InvalidateCache drops every cached response
func (s *Searcher) InvalidateCache() {
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}
