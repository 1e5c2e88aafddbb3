package audit

import (
	"encoding/json"
	"fmt"
)

// VerifyError locates the first bad line of an audit log.
type VerifyError struct {
	Line int
	Err  error
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *VerifyError) Unwrap() error { return e.Err }

// Verify checks an audit log. Every line must be a well-formed entry that
// links to the one before it. An empty log is valid.
func Verify(path string) error {
	lines, err := readLines(path)
	if err != nil {
		return fmt.Errorf("read audit log: %w", err)
	}

	c := newChain()
	for i, line := range lines {
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			return &VerifyError{Line: i + 1, Err: fmt.Errorf("invalid JSON: %w", err)}
		}
		if err := c.follow(&entry); err != nil {
			return &VerifyError{Line: i + 1, Err: err}
		}
		if err := entry.validate(); err != nil {
			return &VerifyError{Line: i + 1, Err: err}
		}
	}
	return nil
}

// Tail returns the last n entries from the audit log. Lines that do not
// decode are skipped.
func Tail(path string, n int) ([]Entry, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	n = max(0, min(n, len(lines)))

	entries := make([]Entry, 0, n)
	for _, line := range lines[len(lines)-n:] {
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
