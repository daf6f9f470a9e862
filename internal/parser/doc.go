// Package parser decodes session-transcript files into searchable documents.
//
// A transcript is a JSONL file: one JSON record per line. Records of type
// "user" and "assistant" carry a message whose content is either a string or
// an array of content blocks; only text blocks are kept. A "summary" record
// supplies the session summary, otherwise the first user prompt is used.
//
// # Basic Usage
//
//	p := parser.New()
//	session, err := p.ParseFile("/home/me/.claude/projects/app/2b1c.jsonl")
//	if err != nil {
//	    var perr *types.ParseError
//	    if errors.As(err, &perr) {
//	        // incomplete or corrupt file, retry later
//	    }
//	}
//
// # File Recognition
//
// IsSessionFile owns the rule for what counts as a transcript: a non-hidden
// file with the .jsonl extension. Discover applies it to a set of root
// directories and skips hidden directories.
//
// # Failure Model
//
// A single non-blank line that is not valid JSON fails the whole file with a
// *types.ParseError. Files that are still being appended to usually end in a
// truncated record, so they fail now and parse cleanly on a later run.
// An empty file parses to a session with no messages.
package parser
