package harness

import (
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/assetsync/internal/ir"
)

// TraceSnapshot captures a scenario trace for golden comparison. Root
// checksums are replaced by labels in order of first appearance, so golden
// files survive changes to the hash domain.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// canonical renders the snapshot as canonical JSON.
func (s *TraceSnapshot) canonical() ([]byte, error) {
	labels := make(map[string]string)
	label := func(root string) string {
		if l, ok := labels[root]; ok {
			return l
		}
		l := fmt.Sprintf("root-%d", len(labels)+1)
		labels[root] = l
		return l
	}

	events := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		m := map[string]any{
			"seq":      event.Seq,
			"step":     event.Step,
			"snapshot": event.Snapshot,
			"root":     label(event.Root),
		}
		if event.Stats != nil {
			m["session"] = event.Stats.Session
		}
		events[i] = m
	}

	v, err := ir.ToValue(map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         events,
	})
	if err != nil {
		return nil, err
	}
	return ir.MarshalCanonical(v)
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result's trace against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{ScenarioName: scenarioName, Trace: result.Trace}
	traceJSON, err := snapshot.canonical()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
