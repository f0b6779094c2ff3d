// Package script defines the script record tracked through its execution
// lifecycle, along with the status enumeration and the error taxonomy shared
// by the registry, the engine and the public API.
package script

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// Sentinel errors for public operations.
var (
	// ErrInvalidArgument indicates malformed input (empty body, non-positive id).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound indicates the referenced script id is not in the registry.
	ErrNotFound = errors.New("script not found")
)

// Status is the lifecycle state of a script.
type Status string

const (
	StatusQueued    Status = "QUEUED"
	StatusExecuting Status = "EXECUTING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusStopped   Status = "STOPPED"
)

// Terminal reports whether no further transitions can occur.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusStopped:
		return true
	}
	return false
}

// ParseStatus resolves a case-insensitive status string.
// Unknown values report ok=false; callers treat that as "no filter".
func ParseStatus(raw string) (Status, bool) {
	switch Status(strings.ToUpper(raw)) {
	case StatusQueued:
		return StatusQueued, true
	case StatusExecuting:
		return StatusExecuting, true
	case StatusCompleted:
		return StatusCompleted, true
	case StatusFailed:
		return StatusFailed, true
	case StatusStopped:
		return StatusStopped, true
	}
	return "", false
}

// Script is the tracked representation of one submission and its outcome.
// The id and body are immutable; everything else is updated in place while
// execution proceeds, so all mutable state is guarded by a mutex. Callers
// holding a *Script observe updates live.
type Script struct {
	id   int64
	body string

	mu        sync.RWMutex
	status    Status
	language  string
	startTime *time.Time
	endTime   *time.Time
	stdout    string
	stderr    string
	errMsg    string
}

// New creates a script record in the QUEUED state.
func New(id int64, body string) *Script {
	return &Script{
		id:     id,
		body:   body,
		status: StatusQueued,
	}
}

// ID returns the immutable script id.
func (s *Script) ID() int64 { return s.id }

// Body returns the immutable source text.
func (s *Script) Body() string { return s.body }

// Status returns the current lifecycle state.
func (s *Script) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Language returns the language hint, if one was set at submission.
func (s *Script) Language() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.language
}

// SetLanguage records a language hint for the interpreter selection.
func (s *Script) SetLanguage(lang string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.language = lang
}

// StartTime returns the execution start time, if execution has begun.
func (s *Script) StartTime() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.startTime == nil {
		return time.Time{}, false
	}
	return *s.startTime, true
}

// EndTime returns the terminal transition time, if one occurred.
func (s *Script) EndTime() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.endTime == nil {
		return time.Time{}, false
	}
	return *s.endTime, true
}

// Stdout returns the captured standard output observed so far.
func (s *Script) Stdout() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stdout
}

// Stderr returns the captured standard error observed so far.
func (s *Script) Stderr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stderr
}

// Err returns the human-readable failure or interruption description.
// It is informational on STOPPED records, not a failure indicator.
func (s *Script) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errMsg
}

// SetOutput mirrors the sandbox's accumulated output into the record.
// The engine calls this repeatedly while evaluation is in flight and once
// more on every exit path, so terminal records hold the final output.
func (s *Script) SetOutput(stdout, stderr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stdout = stdout
	s.stderr = stderr
}

// MarkExecuting transitions QUEUED -> EXECUTING and stamps startTime.
// It is a no-op once the record has left the QUEUED state.
func (s *Script) MarkExecuting() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusQueued {
		return
	}
	now := time.Now()
	s.status = StatusExecuting
	s.startTime = &now
}

// MarkCompleted transitions to COMPLETED. No-op if already terminal.
func (s *Script) MarkCompleted() {
	s.terminate(StatusCompleted, "")
}

// MarkFailed transitions to FAILED and records the failure description.
// No-op if already terminal.
func (s *Script) MarkFailed(msg string) {
	s.terminate(StatusFailed, msg)
}

// MarkStopped transitions to STOPPED and records the interruption
// description. Both the coordinator and the engine may call this for the
// same cancellation; the second call must not reset endTime, so it is a
// strict no-op once the record is terminal.
func (s *Script) MarkStopped(msg string) {
	s.terminate(StatusStopped, msg)
}

func (s *Script) terminate(status Status, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return
	}
	now := time.Now()
	s.status = status
	s.endTime = &now
	if msg != "" {
		s.errMsg = msg
	}
}

// Snapshot is an immutable point-in-time copy of a record, suitable for
// serialization over the wire.
type Snapshot struct {
	ID        int64      `json:"id"`
	Body      string     `json:"body"`
	Status    Status     `json:"status"`
	StartTime *time.Time `json:"startTime,omitempty"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	Stdout    string     `json:"stdout"`
	Stderr    string     `json:"stderr"`
	Error     string     `json:"error,omitempty"`
}

// Snapshot copies the current state of the record.
func (s *Script) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		ID:     s.id,
		Body:   s.body,
		Status: s.status,
		Stdout: s.stdout,
		Stderr: s.stderr,
		Error:  s.errMsg,
	}
	if s.startTime != nil {
		t := *s.startTime
		snap.StartTime = &t
	}
	if s.endTime != nil {
		t := *s.endTime
		snap.EndTime = &t
	}
	return snap
}
