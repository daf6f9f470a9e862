package parser

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dshills/sessionsearch-mcp/pkg/types"
)

const (
	// SessionFileExt is the extension of transcript files
	SessionFileExt = ".jsonl"

	// defaultMaxLineBytes bounds a single transcript record
	defaultMaxLineBytes = 16 * 1024 * 1024

	// maxSummaryRunes bounds a summary derived from the first prompt
	maxSummaryRunes = 200
)

// Parser decodes session transcripts into types.Session documents
type Parser struct {
	maxLineBytes int
}

// New creates a new Parser instance
func New() *Parser {
	return &Parser{
		maxLineBytes: defaultMaxLineBytes,
	}
}

// record is a single line of a transcript
type record struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	CWD       string          `json:"cwd"`
	Timestamp string          `json:"timestamp"`
	Summary   string          `json:"summary"`
	Message   json.RawMessage `json:"message"`
}

// message is the message field of a user or assistant record
type message struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// contentBlock is one element of an array-valued message content
type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// IsSessionFile reports whether path names a transcript the indexer should consider.
// Hidden files and anything without the .jsonl extension are ignored.
func IsSessionFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return strings.EqualFold(filepath.Ext(base), SessionFileExt)
}

// Discover walks each root and returns the absolute path of every session
// file found. Unreadable roots and directories are skipped; the result is
// unordered.
func (p *Parser) Discover(roots []string) []string {
	var files []string
	seen := make(map[string]struct{})

	for _, root := range roots {
		if abs, err := filepath.Abs(root); err == nil {
			root = abs
		}
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				// Missing root or unreadable directory
				slog.Debug("discover: skipping path", "path", path, "error", err)
				if d != nil && d.IsDir() && path != root {
					return filepath.SkipDir
				}
				return nil
			}

			if d.IsDir() {
				if path != root && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}

			if !d.Type().IsRegular() || !IsSessionFile(path) {
				return nil
			}

			if _, dup := seen[path]; dup {
				return nil
			}
			seen[path] = struct{}{}
			files = append(files, path)
			return nil
		})
		if err != nil {
			slog.Debug("discover: walk aborted", "root", root, "error", err)
		}
	}

	return files
}

// ParseFile reads and decodes a transcript file
func (p *Parser) ParseFile(filePath string) (*types.Session, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, &types.ParseError{File: filePath, Message: "failed to open file", Err: err}
	}
	defer func() { _ = f.Close() }()

	return p.Parse(filePath, f)
}

// Parse decodes a transcript from r. Any non-blank line that is not valid JSON
// fails the whole file, which is what a transcript still being written looks like.
func (p *Parser) Parse(filePath string, r io.Reader) (*types.Session, error) {
	session := &types.Session{Path: filePath}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, min(64*1024, p.maxLineBytes)), p.maxLineBytes)

	lineNo := 0
	var firstPrompt string
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, &types.ParseError{File: filePath, Line: lineNo, Message: "malformed record", Err: err}
		}

		if session.SessionID == "" && rec.SessionID != "" {
			session.SessionID = rec.SessionID
		}
		if session.Project == "" && rec.CWD != "" {
			session.Project = rec.CWD
		}
		if rec.Type == "summary" && rec.Summary != "" && session.Summary == "" {
			session.Summary = rec.Summary
		}

		ts := parseTimestamp(rec.Timestamp)
		if !ts.IsZero() {
			if session.StartedAt.IsZero() || ts.Before(session.StartedAt) {
				session.StartedAt = ts
			}
			if ts.After(session.UpdatedAt) {
				session.UpdatedAt = ts
			}
		}

		if rec.Type != string(types.RoleUser) && rec.Type != string(types.RoleAssistant) {
			continue
		}
		if len(rec.Message) == 0 {
			continue
		}

		var msg message
		if err := json.Unmarshal(rec.Message, &msg); err != nil {
			return nil, &types.ParseError{File: filePath, Line: lineNo, Message: "malformed message", Err: err}
		}

		text := strings.TrimSpace(extractText(msg.Content))
		if text == "" {
			continue
		}

		role := types.Role(msg.Role)
		if role != types.RoleUser && role != types.RoleAssistant {
			role = types.Role(rec.Type)
		}

		if firstPrompt == "" && role == types.RoleUser {
			firstPrompt = text
		}

		session.Messages = append(session.Messages, types.Message{
			Ordinal:   len(session.Messages),
			Role:      role,
			Text:      text,
			Timestamp: ts,
		})
	}

	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, &types.ParseError{File: filePath, Line: lineNo + 1, Message: "record exceeds size limit", Err: err}
		}
		return nil, &types.ParseError{File: filePath, Message: "failed to read file", Err: err}
	}

	if session.Summary == "" && firstPrompt != "" {
		session.Summary = truncate(firstPrompt, maxSummaryRunes)
	}

	return session, nil
}

// extractText returns the text of a message content that is either a plain
// string or an array of blocks. Non-text blocks (tool calls, images) are dropped.
func extractText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}

	var sb strings.Builder
	for _, block := range blocks {
		if block.Type != "" && block.Type != "text" {
			continue
		}
		if strings.TrimSpace(block.Text) == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(block.Text)
	}
	return sb.String()
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

func truncate(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return fmt.Sprintf("%s...", string(runes[:maxRunes]))
}
