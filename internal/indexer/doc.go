// Package indexer keeps the session index in step with the transcript files
// on disk.
//
// It decides which files need work, drives the index store writer through
// them and reports progress. Parsing belongs to the Parser collaborator and
// persistence to storage.Store; the indexer only orders and batches.
//
// # Basic Usage
//
// One-shot commands make sure the index is fresh before they query it:
//
//	stats, err := indexer.EnsureFresh(ctx, store, parser.New(), roots, os.Stderr)
//	if err != nil {
//	    return err
//	}
//	if stats == nil {
//	    // nothing changed since the last run
//	}
//
// Long-running hosts use a Runner instead:
//
//	r := indexer.NewRunner(store, parser.New(), indexer.RunnerConfig{
//	    Roots: roots,
//	    Watch: true,
//	})
//	if err := r.Start(ctx); err != nil {
//	    return err
//	}
//	defer r.Stop()
//
// # Indexing Pipeline
//
// IndexFiles processes files in the order given:
//
//  1. Delete whatever the index holds for the file
//  2. Parse it; on failure count it and move on without marking it
//  3. Insert the session if it has messages, then mark the file indexed
//  4. Every ProgressInterval files, and after the last, report progress
//  5. Every CommitInterval files, commit and run the checkpoint callback
//
// A final commit always follows the last file. Only writer errors stop a run.
//
// # Incremental Indexing
//
// Freshness is decided by modification time. A file is indexed again when it
// has no skip-state entry or its mtime is newer than the recorded one. Files
// that failed to parse have no entry, so the next run retries them; this is
// the normal case for a transcript that is still being written.
//
// Skip-state is saved once at the end of a successful run (and at each
// checkpoint in the Runner). A run that aborts leaves it untouched, so
// anything not recorded is simply indexed again.
//
// # Concurrency
//
// The pipeline is synchronous and callbacks run inline. The store allows a
// single writer; within a process the Runner serializes its passes with an
// IndexLock and folds requests that arrive mid-pass into one follow-up pass.
package indexer
