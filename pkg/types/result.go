package types

import "time"

// SearchResult represents a single search result with relevance information
type SearchResult struct {
	// Identification
	MessageID int64
	Rank      int // Position in result set (1-based)

	// Scoring
	RelevanceScore float64 // Normalized BM25 score in (0, 1]

	// Metadata
	Session *SessionInfo
	Role    Role
	Snippet string // Matched text with surrounding context
}

// SessionInfo contains session metadata for a search result
type SessionInfo struct {
	Path      string
	SessionID string
	Project   string
	Summary   string
	UpdatedAt time.Time
}

// Validate checks if the search result is valid
func (sr *SearchResult) Validate() error {
	if sr.MessageID == 0 {
		return ErrInvalidMessageID
	}

	if sr.Rank < 1 {
		return ErrInvalidRank
	}

	if sr.RelevanceScore <= 0 || sr.RelevanceScore > 1 {
		return ErrInvalidRelevanceScore
	}

	if sr.Session == nil {
		return ErrMissingSessionInfo
	}

	if sr.Snippet == "" {
		return ErrEmptyContent
	}

	return nil
}
