// Package storage provides the SQLite-based index store for session transcripts.
//
// The storage layer manages:
//   - Session metadata (path, session ID, project, summary)
//   - Message text, one row per user or assistant turn
//   - The FTS5 full-text index over message text
//
// # Database Schema
//
// Tables:
//   - sessions: One row per indexed transcript file, unique by path
//   - messages: Searchable units, cascade-deleted with their session
//   - messages_fts: External-content FTS5 index kept in sync by triggers
//   - schema_version: Applied migrations
//
// # Basic Usage
//
//	store, err := storage.Open("~/.sessionsearch/index")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
// # Writing
//
// The store hands out a single Writer at a time. Deletes and inserts are
// buffered in a transaction that is opened lazily and made durable on Commit;
// Close discards anything not committed and releases the writer.
//
//	w, err := store.Writer(ctx)
//	if err != nil {
//	    return err // ErrWriterBusy if another writer is held
//	}
//	defer w.Close()
//
//	_ = w.DeleteSession(ctx, session.Path)
//	_ = w.InsertSession(ctx, session)
//	if err := w.Commit(); err != nil {
//	    return err
//	}
//
// # Reader Visibility
//
// Searches run on a separate connection pool. Committed writes become
// visible once ReloadReaders is called, which also advances Generation so
// cached search results keyed on it are dropped.
//
// # Full-Text Search
//
//	results, err := store.SearchText(ctx, "linker error", 10, &storage.SearchFilters{
//	    Project: "/work/app",
//	})
//	for _, r := range results {
//	    fmt.Printf("%s: %s (%.3f)\n", r.Session.Path, r.Snippet, r.BM25Score)
//	}
//
// Query text is quoted term by term before it reaches FTS5, so operators
// and punctuation match literally. A trailing * keeps prefix matching.
//
// # Build Tags
//
// The storage package supports two build configurations:
//
// CGO Build (sqlite_vec tag):
//
//   - Uses github.com/mattn/go-sqlite3 driver
//
//   - Requires C compiler and the fts5 tag
//
//     CGO_ENABLED=1 go build -tags "sqlite_vec,fts5"
//
// Pure Go Build (purego tag, the default):
//
//   - Uses modernc.org/sqlite driver
//
//   - No C compiler needed
//
//     CGO_ENABLED=0 go build -tags "purego"
package storage
