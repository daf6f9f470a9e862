package types

import "errors"

// Domain errors for type validation
var (
	// Session errors
	ErrInvalidRole = errors.New("message role must be user or assistant")

	// Search result errors
	ErrInvalidMessageID      = errors.New("invalid message ID")
	ErrInvalidRank           = errors.New("rank must be >= 1")
	ErrInvalidRelevanceScore = errors.New("relevance score must be in (0, 1]")
	ErrMissingSessionInfo    = errors.New("session info is required")
	ErrEmptyContent          = errors.New("content cannot be empty")
	ErrEmptyQuery            = errors.New("query cannot be empty")
)
