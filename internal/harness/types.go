package harness

import "github.com/roach88/tiplink/internal/ir"

// Outcome recorded for a committed operation.
const OutcomeOK = "ok"

// TraceEvent is one executed operation.
type TraceEvent struct {
	Seq     int    `json:"seq"`
	Op      string `json:"op"`
	Caller  string `json:"caller,omitempty"`
	Outcome string `json:"outcome"` // OutcomeOK or the contract error code
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation and check held.
	Pass bool `json:"pass"`

	// Trace lists operations in execution order.
	Trace []TraceEvent `json:"trace"`

	// Transfers is the final outbox with delivery states.
	Transfers []ir.TransferRecord `json:"transfers"`

	// Errors holds one message per failed expectation or check.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:      true,
		Trace:     []TraceEvent{},
		Transfers: []ir.TransferRecord{},
		Errors:    []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends an operation to the trace and returns its sequence number.
func (r *Result) AddTrace(op, caller, outcome string) int {
	seq := len(r.Trace) + 1
	r.Trace = append(r.Trace, TraceEvent{Seq: seq, Op: op, Caller: caller, Outcome: outcome})
	return seq
}
