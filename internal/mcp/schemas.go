package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// searchSessionsTool returns the tool definition for search_sessions
func searchSessionsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_sessions",
		Description: "Full-text search over indexed session transcripts, ranked by BM25 relevance",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search terms. Every term must match; a trailing * matches by prefix",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"project": map[string]interface{}{
					"type":        "string",
					"description": "Only match sessions that ran in this working directory",
				},
				"path_prefix": map[string]interface{}{
					"type":        "string",
					"description": "Only match transcripts whose path starts with this prefix",
				},
				"role": map[string]interface{}{
					"type":        "string",
					"description": "Only match messages from this author",
					"enum":        []string{"user", "assistant"},
				},
			},
			Required: []string{"query"},
		},
	}
}

// indexSessionsTool returns the tool definition for index_sessions
func indexSessionsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_sessions",
		Description: "Bring the session index up to date with transcripts on disk",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"wait": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, index now and return statistics; otherwise queue a background pass",
					"default":     false,
				},
			},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report index statistics, health and background indexing progress",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
