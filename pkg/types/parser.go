package types

import "fmt"

// ParseError reports a transcript that could not be decoded.
// Files that fail to parse are retried on the next indexing run.
type ParseError struct {
	File    string
	Line    int
	Message string
	Err     error
}

// Error implements the error interface
func (pe *ParseError) Error() string {
	if pe.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", pe.File, pe.Line, pe.Message)
	}
	return fmt.Sprintf("%s: %s", pe.File, pe.Message)
}

// Unwrap returns the underlying cause
func (pe *ParseError) Unwrap() error {
	return pe.Err
}
