package harness

import "github.com/roach88/assetsync/internal/replica"

// Step type names as they appear in traces.
const (
	StepBuild   = "build"
	StepSync    = "sync"
	StepDispose = "dispose"
)

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq      int64          `json:"seq"`
	Step     string         `json:"step"`
	Snapshot string         `json:"snapshot"`
	Root     string         `json:"root"`
	Stats    *replica.Stats `json:"stats,omitempty"` // sync steps only
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace lists executed steps in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Roots maps snapshot names to the root checksums they built to.
	Roots map[string]string `json:"roots,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Roots:  make(map[string]string),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// syncEvent returns the trace event for step index i if it was a sync.
func (r *Result) syncEvent(i int) (TraceEvent, bool) {
	if i < 0 || i >= len(r.Trace) || r.Trace[i].Stats == nil {
		return TraceEvent{}, false
	}
	return r.Trace[i], true
}
