package workflow

import (
	"sync"
	"time"

	command "github.com/goliatone/go-command-worker"
)

const (
	HeaderTickTime = "tickTime"
	HeaderReplay   = "replay"
	HeaderTimeZone = "timezone"
)

// Environment is the orchestrator supplied snapshot workflow code reads time
// and replay state from. It is refreshed from the headers of every inbound
// message.
type Environment struct {
	mu        sync.RWMutex
	now       time.Time
	location  *time.Location
	replaying bool
}

func NewEnvironment() *Environment {
	return &Environment{location: time.UTC}
}

// Update applies message headers. Unknown or malformed values keep the
// previous state.
func (e *Environment) Update(headers map[string]any) {
	if len(headers) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if raw, ok := headers[HeaderTickTime].(string); ok && raw != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			e.now = t
		}
	}
	if raw, ok := headers[HeaderTimeZone].(string); ok && raw != "" {
		if loc, err := time.LoadLocation(raw); err == nil {
			e.location = loc
		}
	}
	switch v := headers[HeaderReplay].(type) {
	case bool:
		e.replaying = v
	case string:
		e.replaying = v == "true" || v == "1"
	case nil:
	default:
		n, _ := command.ToInt64(v)
		e.replaying = n != 0
	}
}

// SetReplaying overrides the replay flag.
func (e *Environment) SetReplaying(v bool) {
	e.mu.Lock()
	e.replaying = v
	e.mu.Unlock()
}

func (e *Environment) SetNow(t time.Time) {
	e.mu.Lock()
	e.now = t
	e.mu.Unlock()
}

func (e *Environment) Now() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.now.In(e.location)
}

func (e *Environment) TimeZone() *time.Location {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.location
}

func (e *Environment) IsReplaying() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.replaying
}
