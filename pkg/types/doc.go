// Package types provides shared type definitions for sessionsearch.
//
// # Core Types
//
// Session is the parsed form of one transcript file. Its Messages are the
// units stored in the full-text index:
//
//	session := &types.Session{
//	    Path:      "/home/me/.claude/projects/app/2b1c....jsonl",
//	    SessionID: "2b1c...",
//	    Messages: []types.Message{
//	        {Ordinal: 0, Role: types.RoleUser, Text: "why is the build failing?"},
//	    },
//	}
//
// A session with no messages is valid. It is never inserted into the index,
// but its file is still recorded as indexed so it is not parsed again.
//
// Progress is the snapshot reported while an indexing run is in flight:
//
//	types.Progress{Indexed: 150, Total: 450}
//
// # Search Results
//
// SearchResult pairs a matching message with its session metadata. Relevance
// scores are normalized to the (0, 1] range, higher is better.
package types
