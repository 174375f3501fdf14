package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/tiplink/internal/ir"
)

// Snapshot captures the observable outcome of a scenario: the operation
// trace and the final outbox.
type Snapshot struct {
	ScenarioName string
	Trace        []TraceEvent
	Transfers    []ir.TransferRecord
}

// canonicalMap converts the snapshot to the value shapes ir.MarshalCanonical
// accepts.
func (s *Snapshot) canonicalMap() map[string]any {
	trace := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		m := map[string]any{
			"seq":     event.Seq,
			"op":      event.Op,
			"outcome": event.Outcome,
		}
		if event.Caller != "" {
			m["caller"] = event.Caller
		}
		trace[i] = m
	}

	transfers := make([]any, len(s.Transfers))
	for i, rec := range s.Transfers {
		m := map[string]any{
			"seq":       rec.Seq,
			"id":        rec.ID,
			"kind":      string(rec.Kind),
			"recipient": rec.Recipient,
			"amount":    rec.Amount,
			"origin":    rec.Origin,
			"state":     string(rec.State),
		}
		if rec.Reference != "" {
			m["reference"] = rec.Reference
		}
		if rec.Detail != "" {
			m["detail"] = rec.Detail
		}
		transfers[i] = m
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         trace,
		"transfers":     transfers,
	}
}

// Marshal returns the canonical JSON form of the snapshot.
func (s *Snapshot) Marshal() ([]byte, error) {
	return ir.MarshalCanonical(s.canonicalMap())
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against the golden file for name.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	snapshot := Snapshot{
		ScenarioName: name,
		Trace:        result.Trace,
		Transfers:    result.Transfers,
	}
	data, err := snapshot.Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
