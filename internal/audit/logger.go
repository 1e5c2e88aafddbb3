package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger is an append-only, hash-chained audit log writer.
type Logger struct {
	mu    sync.Mutex
	path  string
	chain chain
	now   func() time.Time
}

// NewLogger opens or creates an audit log at the given path. The chain
// resumes from the last entry already in the file.
func NewLogger(path string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}

	l := &Logger{path: path, chain: newChain(), now: time.Now}
	lines, err := readLines(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if len(lines) > 0 {
		var last Entry
		if err := json.Unmarshal(lines[len(lines)-1], &last); err == nil {
			l.chain = chain{seq: last.Seq, prev: last.Hash}
		}
	}
	return l, nil
}

// Log appends an entry for rec. A record that Verify would reject is
// refused and leaves the chain untouched.
func (l *Logger) Log(rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := rec.entry(l.now())
	if err := entry.validate(); err != nil {
		return fmt.Errorf("audit record %q: %w", rec.Pipeline, err)
	}

	next := l.chain
	next.append(&entry)
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	l.chain = next
	return nil
}

// Path returns the audit log file path.
func (l *Logger) Path() string {
	return l.path
}

func readLines(path string) ([][]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return splitLines(data), nil
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				lines = append(lines, data[start:i])
			}
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}
