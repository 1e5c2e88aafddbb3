package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"syscall"
)

// State is the lifecycle position of one stage. States only move forward:
//
//	Planned -> Spawning -> Running -> Exited | Signaled
//	                    -> SpawnFailed
type State int

const (
	Planned State = iota
	Spawning
	Running
	Exited
	Signaled
	SpawnFailed
)

func (s State) String() string {
	switch s {
	case Planned:
		return "planned"
	case Spawning:
		return "spawning"
	case Running:
		return "running"
	case Exited:
		return "exited"
	case Signaled:
		return "signaled"
	case SpawnFailed:
		return "spawn-failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Exited || s == Signaled || s == SpawnFailed
}

var transitions = map[State][]State{
	Planned:  {Spawning},
	Spawning: {Running, SpawnFailed},
	Running:  {Exited, Signaled},
}

// advance moves s to next, panicking on any transition not in the table.
func (s *State) advance(next State) {
	for _, ok := range transitions[*s] {
		if ok == next {
			*s = next
			return
		}
	}
	panic(fmt.Sprintf("engine: invalid stage transition %s -> %s", *s, next))
}

// StageResult records what happened to one stage.
type StageResult struct {
	Index   int
	Program string
	State   State
	Code    int            // exit code, when Exited
	Signal  syscall.Signal // terminating signal, when Signaled
	Err     error          // spawn failure, or trouble collecting the exit
}

// Status converts the stage outcome to a shell exit status.
func (r *StageResult) Status() int {
	switch r.State {
	case Exited:
		return r.Code
	case Signaled:
		return statusSignalOffset + int(r.Signal)
	case SpawnFailed:
		return spawnStatus(r.Err)
	default:
		return 0
	}
}

func (r *StageResult) String() string {
	switch r.State {
	case Exited:
		return fmt.Sprintf("%s: exited %d", r.Program, r.Code)
	case Signaled:
		return fmt.Sprintf("%s: killed by %s", r.Program, r.Signal)
	case SpawnFailed:
		return fmt.Sprintf("%s: %v", r.Program, r.Err)
	default:
		return fmt.Sprintf("%s: %s", r.Program, r.State)
	}
}

// Result is the outcome of one pipeline run.
type Result struct {
	Stages []StageResult
	Exit   int // aggregate status
}

// Statuses returns each stage's status in pipeline order.
func (r *Result) Statuses() []int {
	out := make([]int, len(r.Stages))
	for i := range r.Stages {
		out[i] = r.Stages[i].Status()
	}
	return out
}

// Exit statuses for failures that happen before or instead of a program
// running.
const (
	StatusFailure      = 1
	StatusUsage        = 2
	StatusCannotExec   = 126
	StatusNotFound     = 127
	statusSignalOffset = 128
)

func spawnStatus(err error) int {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return StatusNotFound
	}
	return StatusCannotExec
}

// IOError reports a redirect file that could not be opened. Nothing has
// been spawned when it is returned.
type IOError struct {
	Stage   int
	Program string
	Path    string
	Err     error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s: %v", e.Program, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// ExitCode is the shell status for an IOError.
func (e *IOError) ExitCode() int { return StatusFailure }

// SpawnError reports a program that could not be started. Any stage that
// was already running has been killed and reaped when it is returned.
type SpawnError struct {
	Stage   int
	Program string
	Err     error
}

func (e *SpawnError) Error() string {
	if errors.Is(e.Err, exec.ErrNotFound) {
		return fmt.Sprintf("%s: command not found", e.Program)
	}
	return fmt.Sprintf("%s: %v", e.Program, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// ExitCode is 127 when the program does not exist and 126 otherwise.
func (e *SpawnError) ExitCode() int { return spawnStatus(e.Err) }
