package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/sessionsearch-mcp/internal/indexer"
	"github.com/dshills/sessionsearch-mcp/internal/searcher"
	"github.com/dshills/sessionsearch-mcp/internal/storage"
	"github.com/dshills/sessionsearch-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeIndexingInProgress = -32002 // Another indexing pass is already running
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
)

// handleSearchSessions handles the search_sessions tool invocation
func (s *Server) handleSearchSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, _ := args["query"].(string)

	limit := getIntDefault(args, "limit", s.searchLimit)
	if limit < 1 || limit > searcher.MaxLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	role := types.Role(getStringDefault(args, "role", ""))
	if role != "" && role != types.RoleUser && role != types.RoleAssistant {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid role", map[string]interface{}{
			"param":   "role",
			"value":   string(role),
			"allowed": []string{string(types.RoleUser), string(types.RoleAssistant)},
		})
	}

	resp, err := s.searcher.Search(ctx, searcher.SearchRequest{
		Query: query,
		Limit: limit,
		Filters: &storage.SearchFilters{
			Project:    getStringDefault(args, "project", ""),
			PathPrefix: getStringDefault(args, "path_prefix", ""),
			Role:       role,
		},
		UseCache: true,
	})
	if errors.Is(err, types.ErrEmptyQuery) {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	results := make([]map[string]interface{}, len(resp.Results))
	for i, r := range resp.Results {
		result := map[string]interface{}{
			"rank":    r.Rank,
			"score":   r.RelevanceScore,
			"role":    string(r.Role),
			"snippet": r.Snippet,
		}
		if r.Session != nil {
			result["path"] = r.Session.Path
			result["session_id"] = r.Session.SessionID
			result["project"] = r.Session.Project
			result["summary"] = r.Session.Summary
			result["updated_at"] = formatTime(r.Session.UpdatedAt)
		}
		results[i] = result
	}

	response := map[string]interface{}{
		"query":         query,
		"total_results": resp.TotalResults,
		"duration_ms":   resp.Duration.Milliseconds(),
		"cache_hit":     resp.CacheHit,
		"results":       results,
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleIndexSessions handles the index_sessions tool invocation
func (s *Server) handleIndexSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})

	if !getBoolDefault(args, "wait", false) {
		s.runner.TriggerNow()
		response := map[string]interface{}{
			"queued":  true,
			"message": "Indexing pass queued. Use get_status to follow progress.",
		}
		return mcp.NewToolResultText(formatJSON(response)), nil
	}

	stats, err := s.runner.RunOnce(ctx)
	if errors.Is(err, indexer.ErrIndexing) {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", map[string]interface{}{
			"progress": progressMap(s.runner.Status().Progress),
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := statsMap(stats)
	if stats.Total == 0 {
		response["message"] = "Index is up to date."
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.store.GetStatus(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	run := s.runner.Status()
	indexing := map[string]interface{}{
		"running":  run.Running,
		"progress": progressMap(run.Progress),
	}
	if !run.LastRun.IsZero() {
		indexing["last_run"] = formatTime(run.LastRun)
	}
	if run.LastError != "" {
		indexing["last_error"] = run.LastError
	}
	if run.LastStats != nil {
		indexing["last_stats"] = statsMap(run.LastStats)
	}

	response := map[string]interface{}{
		"index": map[string]interface{}{
			"location":        s.store.Location(),
			"sessions_count":  status.SessionsCount,
			"messages_count":  status.MessagesCount,
			"index_size_mb":   fmt.Sprintf("%.2f", status.IndexSizeMB),
			"last_indexed_at": formatTime(status.LastIndexedAt),
			"generation":      status.Generation,
		},
		"health": map[string]interface{}{
			"database_accessible": status.Health.DatabaseAccessible,
			"fts_index_built":     status.Health.FTSIndexBuilt,
		},
		"indexing": indexing,
		"roots":    s.roots,
		"build": map[string]interface{}{
			"mode":   storage.BuildMode,
			"driver": storage.DriverName,
		},
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func statsMap(stats *indexer.Statistics) map[string]interface{} {
	m := map[string]interface{}{
		"total":       stats.Total,
		"indexed":     stats.Indexed,
		"empty":       stats.Empty,
		"failed":      stats.Failed,
		"commits":     stats.Commits,
		"duration_ms": stats.Duration.Milliseconds(),
	}
	if len(stats.FailedFiles) > 0 {
		m["failed_files"] = stats.FailedFiles
	}
	return m
}

func progressMap(p types.Progress) map[string]interface{} {
	return map[string]interface{}{
		"indexed": p.Indexed,
		"total":   p.Total,
	}
}

// formatTime renders t as RFC 3339, or "" when unknown
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
