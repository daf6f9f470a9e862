// Package searcher answers ranked full-text queries over indexed sessions.
//
// Ranking and snippet extraction happen in the index store (SQLite FTS5 with
// BM25). The searcher validates requests, applies limits, assigns ranks and
// keeps an LRU cache of recent responses.
//
// # Basic Usage
//
//	s := searcher.NewSearcher(store)
//
//	resp, err := s.Search(ctx, searcher.SearchRequest{
//	    Query:   "linker undefined reference",
//	    Limit:   10,
//	    Filters: &storage.SearchFilters{Project: "/work/app"},
//	})
//
//	for _, r := range resp.Results {
//	    fmt.Printf("[%d] %s (score: %.2f)\n%s\n",
//	        r.Rank, r.Session.Path, r.RelevanceScore, r.Snippet)
//	}
//
// # Query Syntax
//
// Each whitespace-separated term must match; FTS operators in the input are
// treated as literal text. A trailing * on a term matches by prefix.
//
// # Caching
//
// With UseCache set, non-empty responses are cached for CacheTTL (default one
// hour). Cache keys include the store's reader generation, so a reload after
// indexing makes older entries unreachable; they age out of the LRU.
// InvalidateCache drops everything immediately.
//
// Returned responses are copies and may be modified by the caller.
package searcher
