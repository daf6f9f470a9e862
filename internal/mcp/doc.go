// Package mcp implements the Model Context Protocol (MCP) server for sessionsearch.
//
// The MCP server exposes three tools to AI coding assistants:
//   - search_sessions: Full-text search over indexed session transcripts
//   - index_sessions: Bring the index up to date
//   - get_status: Index statistics and background indexing progress
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// stdout carries the protocol, so everything else logs to stderr.
//
// # Basic Usage
//
// The MCP server is typically started via the serve command:
//
//	sessionsearch serve
//
// While it serves, a background indexer.Runner keeps the index fresh: an
// initial pass at startup, then passes on transcript changes and on the
// configured rescan interval. Readers are reloaded at every checkpoint, so
// searches see a large first index grow as it is built.
//
// # Tool: search_sessions
//
//	Request:
//	{
//	  "name": "search_sessions",
//	  "arguments": {
//	    "query": "linker undefined reference",
//	    "limit": 10,
//	    "project": "/work/app",
//	    "role": "assistant"
//	  }
//	}
//
//	Response:
//	{
//	  "query": "linker undefined reference",
//	  "total_results": 1,
//	  "duration_ms": 3,
//	  "cache_hit": false,
//	  "results": [
//	    {
//	      "rank": 1,
//	      "score": 0.87,
//	      "path": "/home/me/.claude/projects/app/7f3c.jsonl",
//	      "session_id": "7f3c...",
//	      "project": "/work/app",
//	      "summary": "Fix release build",
//	      "updated_at": "2025-01-02T11:00:00Z",
//	      "role": "assistant",
//	      "snippet": "...add libfoo to the [linker] flags..."
//	    }
//	  ]
//	}
//
// # Tool: index_sessions
//
// Without arguments the tool queues a background pass and returns at once.
// With "wait": true it indexes on the caller's request and returns the run's
// statistics:
//
//	{
//	  "total": 12,
//	  "indexed": 11,
//	  "empty": 1,
//	  "failed": 1,
//	  "commits": 1,
//	  "duration_ms": 140,
//	  "failed_files": ["/.../a.jsonl: line 40: unexpected end of JSON input"]
//	}
//
// Files that fail to parse are usually transcripts still being written; they
// are retried on the next pass.
//
// # Tool: get_status
//
// Reports index counts and health, the runner's current progress, and the
// statistics and error of its last pass.
//
// # Error Handling
//
// Tool errors are returned as *MCPError with JSON-RPC codes:
//
//	-32602  Invalid params (limit out of range, unknown role)
//	-32603  Internal error (store failure)
//	-32002  Indexing already in progress (index_sessions with wait)
//	-32004  Empty query
package mcp
