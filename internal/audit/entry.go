package audit

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Entry represents a single audit log record.
type Entry struct {
	Seq        uint64    `json:"seq"`
	Time       time.Time `json:"ts"`
	PrevHash   string    `json:"prev_hash"`
	Pipeline   string    `json:"pipeline"`               // source text of the command
	Programs   []string  `json:"programs"`               // program of each stage
	StageExits []int     `json:"stage_exits,omitempty"`  // status of each stage, in stage order
	Pipefail   bool      `json:"pipefail,omitempty"`     // true if pipefail was enabled
	Bypass     bool      `json:"bypass_rules,omitempty"` // true if --bypass-rules was used
	ExitCode   int       `json:"exit_code"`              // 0 = success
	Error      string    `json:"error,omitempty"`        // error message if failed
	Duration   float64   `json:"duration_ms"`            // execution time in milliseconds
	Cwd        string    `json:"cwd"`                    // working directory
	Hash       string    `json:"hash"`                   // SHA-256 of this entry (with hash field empty)
}

// Record is what the shell knows about one executed command.
type Record struct {
	Pipeline   string
	Programs   []string
	StageExits []int
	Pipefail   bool
	Bypass     bool
	ExitCode   int
	Err        error
	Duration   time.Duration
	Cwd        string
}

func (rec Record) entry(now time.Time) Entry {
	e := Entry{
		Time:       now.UTC(),
		Pipeline:   rec.Pipeline,
		Programs:   rec.Programs,
		StageExits: rec.StageExits,
		Pipefail:   rec.Pipefail,
		Bypass:     rec.Bypass,
		ExitCode:   rec.ExitCode,
		Duration:   float64(rec.Duration.Microseconds()) / 1000.0,
		Cwd:        rec.Cwd,
	}
	if rec.Err != nil {
		e.Error = rec.Err.Error()
	}
	return e
}

// validate reports an entry whose fields contradict each other.
func (e *Entry) validate() error {
	if len(e.Programs) == 0 {
		return errors.New("no programs")
	}
	if n := len(e.StageExits); n != 0 && n != len(e.Programs) {
		return fmt.Errorf("%d stage exits for %d programs", n, len(e.Programs))
	}
	if e.ExitCode < 0 {
		return fmt.Errorf("negative exit code %d", e.ExitCode)
	}
	if e.Error != "" && e.ExitCode == 0 {
		return fmt.Errorf("error %q with exit code 0", e.Error)
	}
	return nil
}

// digest is the SHA-256 of e encoded with an empty Hash.
func (e Entry) digest() string {
	e.Hash = ""
	data, _ := json.Marshal(e)
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

// chain tracks the tail of a hash chain.
type chain struct {
	seq  uint64
	prev string
}

const genesisInput = "monch-genesis"

func newChain() chain {
	return chain{prev: fmt.Sprintf("%x", sha256.Sum256([]byte(genesisInput)))}
}

// append seals e as the next link.
func (c *chain) append(e *Entry) {
	c.seq++
	e.Seq = c.seq
	e.PrevHash = c.prev
	e.Hash = e.digest()
	c.prev = e.Hash
}

// follow checks that e is a sealed next link and advances past it.
func (c *chain) follow(e *Entry) error {
	if e.Seq != c.seq+1 {
		return fmt.Errorf("sequence gap: expected %d, got %d", c.seq+1, e.Seq)
	}
	if e.PrevHash != c.prev {
		return fmt.Errorf("prev_hash mismatch: expected %s, got %s", short(c.prev), short(e.PrevHash))
	}
	if computed := e.digest(); e.Hash != computed {
		return fmt.Errorf("hash mismatch: expected %s, got %s", short(computed), short(e.Hash))
	}
	c.seq = e.Seq
	c.prev = e.Hash
	return nil
}

func short(hash string) string {
	if len(hash) <= 16 {
		return hash
	}
	return hash[:16] + "..."
}
