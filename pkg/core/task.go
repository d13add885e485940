package core

import (
	"strings"
	"time"
)

// Task is a locked unit of work delivered by the broker.
type Task struct {
	ID                string
	Topic             string
	WorkerID          string
	BusinessKey       string
	ProcessInstanceID string
	ActivityID        string
	Priority          int64
	Retries           *int
	LockExpiration    *time.Time
	Variables         Variables
}

// Variables is the read-only variable bag attached to a task.
// Values are decoded from the broker wire format: nil, string, bool,
// int64, float64, []byte, or for JSON-serialized objects map[string]any
// and []any.
type Variables map[string]any

// Get returns the named variable and whether it was present.
func (v Variables) Get(name string) (any, bool) {
	if v == nil {
		return nil, false
	}
	val, ok := v[name]
	return val, ok
}

// Lookup resolves a dotted path. The first segment selects a top-level
// variable; each further segment indexes into the current value while it is
// a map. The first non-map value encountered yields nil.
func (v Variables) Lookup(path string) any {
	segments := strings.Split(path, ".")
	current, _ := v.Get(segments[0])
	for _, seg := range segments[1:] {
		switch m := current.(type) {
		case map[string]any:
			current = m[seg]
		case Variables:
			current = m[seg]
		default:
			return nil
		}
	}
	return current
}

// OutputVariables is the set of typed values sent back with a completion.
type OutputVariables map[string]TypedValue
