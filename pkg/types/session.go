package types

import (
	"errors"
	"strings"
	"time"
)

// Role identifies who authored a message in a session transcript
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Session is the structured form of one session-transcript file.
// It is the unit the index store inserts and deletes.
type Session struct {
	// Identification
	Path      string // Absolute path of the transcript file
	SessionID string // Session UUID recorded in the transcript, may be empty

	// Metadata
	Project   string // Working directory the session ran in
	Summary   string // Transcript summary or first user prompt
	StartedAt time.Time
	UpdatedAt time.Time

	// Content
	Messages []Message
}

// Message is a single searchable unit of a session
type Message struct {
	Ordinal   int // Position within the session (0-based)
	Role      Role
	Text      string
	Timestamp time.Time
}

// IsEmpty reports whether the session has no content to index
func (s *Session) IsEmpty() bool {
	return len(s.Messages) == 0
}

// Validate checks that the session can be written to the index
func (s *Session) Validate() error {
	if s.Path == "" {
		return errors.New("session path is required")
	}
	for i := range s.Messages {
		if err := s.Messages[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks that the message carries content
func (m *Message) Validate() error {
	if strings.TrimSpace(m.Text) == "" {
		return ErrEmptyContent
	}
	switch m.Role {
	case RoleUser, RoleAssistant:
		return nil
	default:
		return ErrInvalidRole
	}
}

// Progress is a snapshot of an indexing run
type Progress struct {
	Indexed int // Files processed so far
	Total   int // Candidate files in this run
}

// Done reports whether every candidate has been processed
func (p Progress) Done() bool {
	return p.Total > 0 && p.Indexed >= p.Total
}
