package axis

import (
	"fmt"
	"strings"
)

// Ordinary language behavior never produces an error: missing properties,
// privacy violations, and ill-typed operations all reduce to Undefined.
// Errors exist only for the engine's fault classes, each of which is local:
// the rest of the graph keeps evaluating.

// DivergenceError reports a cyclic group that failed to reach a fixed point
// within its wave or magnitude bound. The group's slots end in a terminal
// non-convergent state; no finite value is reported for them.
type DivergenceError struct {
	Group  []SlotRef
	Waves  int
	Reason string
}

func (e *DivergenceError) Error() string {
	names := make([]string, 0, len(e.Group))
	for _, ref := range e.Group {
		names = append(names, fmt.Sprintf("#%d.%s", ref.Obj, ref.Key))
	}
	return fmt.Sprintf("divergent feedback group {%s} after %d waves: %s",
		strings.Join(names, ", "), e.Waves, e.Reason)
}

// ResourceLimitError reports collector growth or call depth exceeding a
// configured limit.
type ResourceLimitError struct {
	Resource string // "collector" or "call depth"
	Obj      ObjectID
	Limit    int
}

func (e *ResourceLimitError) Error() string {
	return fmt.Sprintf("%s limit %d exceeded on object #%d", e.Resource, e.Limit, e.Obj)
}

// ReplayError reports a collector log that failed to replay cleanly on
// startup. The collector falls back to an empty multiset; the fault is
// recoverable.
type ReplayError struct {
	Obj   ObjectID
	Cause error
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("collector #%d log replay failed: %v", e.Obj, e.Cause)
}

func (e *ReplayError) Unwrap() error {
	return e.Cause
}

// AppendError reports a durable append that failed; the insertion it guarded
// never became visible.
type AppendError struct {
	Obj   ObjectID
	Cause error
}

func (e *AppendError) Error() string {
	return fmt.Sprintf("collector #%d log append failed: %v", e.Obj, e.Cause)
}

func (e *AppendError) Unwrap() error {
	return e.Cause
}
