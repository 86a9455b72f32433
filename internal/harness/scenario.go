package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

// Scenario defines a sync scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Snapshots maps snapshot names to manifest paths.
	Snapshots map[string]string `yaml:"snapshots"`

	// SessionTokens are handed out to sync steps in order. There must be
	// one per sync step.
	SessionTokens []string `yaml:"session_tokens"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions are evaluated after the last step.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one action of a scenario. Exactly one field of Build, Sync and
// Dispose is set.
type Step struct {
	Build   string `yaml:"build,omitempty"`
	Sync    string `yaml:"sync,omitempty"`
	Dispose string `yaml:"dispose,omitempty"`

	// Expect checks the stats of a sync step. Unset fields are not checked.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// kind returns the step type and its snapshot.
func (s Step) kind() (string, string) {
	switch {
	case s.Build != "":
		return StepBuild, s.Build
	case s.Sync != "":
		return StepSync, s.Sync
	default:
		return StepDispose, s.Dispose
	}
}

// ExpectClause lists expected sync stats.
type ExpectClause struct {
	Requested *int `yaml:"requested,omitempty"`
	Fetched   *int `yaml:"fetched,omitempty"`
	Skipped   *int `yaml:"skipped,omitempty"`
	Stored    *int `yaml:"stored,omitempty"`
}

// Assertion validates the trace or the final replica.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Snapshots names two snapshots (same_root, different_root).
	Snapshots []string `yaml:"snapshots,omitempty"`

	// Steps names two sync step indexes (fewer_transfers).
	Steps []int `yaml:"steps,omitempty"`

	// Snapshot is the snapshot to reconstruct (replica_contains).
	Snapshot string `yaml:"snapshot,omitempty"`

	// Projects and Documents are expected counts (replica_contains).
	Projects  int `yaml:"projects,omitempty"`
	Documents int `yaml:"documents,omitempty"`

	// Count is the expected number of sessions (session_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertSameRoot        = "same_root"
	AssertDifferentRoot   = "different_root"
	AssertFewerTransfers  = "fewer_transfers"
	AssertReplicaContains = "replica_contains"
	AssertSessionCount    = "session_count"
)

// LoadScenario reads and parses a scenario YAML file. Snapshot paths are
// resolved relative to the file. Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	for name, p := range scenario.Snapshots {
		if !filepath.IsAbs(p) {
			scenario.Snapshots[name] = filepath.Join(base, p)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and consistent.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Snapshots) == 0 {
		return fmt.Errorf("snapshots map is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for name, p := range s.Snapshots {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return fmt.Errorf("snapshot %q: manifest not found: %s", name, p)
		}
	}

	syncs := 0
	for i, step := range s.Steps {
		set := 0
		for _, v := range []string{step.Build, step.Sync, step.Dispose} {
			if v != "" {
				set++
			}
		}
		if set != 1 {
			return fmt.Errorf("steps[%d]: exactly one of build, sync or dispose is required", i)
		}
		typ, snap := step.kind()
		if _, ok := s.Snapshots[snap]; !ok {
			return fmt.Errorf("steps[%d]: unknown snapshot %q", i, snap)
		}
		if step.Expect != nil && typ != StepSync {
			return fmt.Errorf("steps[%d]: expect is only valid on sync steps", i)
		}
		if typ == StepSync {
			syncs++
		}
	}
	if len(s.SessionTokens) != syncs {
		return fmt.Errorf("session_tokens: got %d, want one per sync step (%d)", len(s.SessionTokens), syncs)
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], s); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, s *Scenario) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertSameRoot, AssertDifferentRoot:
		if len(a.Snapshots) != 2 {
			return fmt.Errorf("assertions[%d]: %s needs exactly two snapshots", index, a.Type)
		}
		for _, name := range a.Snapshots {
			if _, ok := s.Snapshots[name]; !ok {
				return fmt.Errorf("assertions[%d]: unknown snapshot %q", index, name)
			}
		}
	case AssertFewerTransfers:
		if len(a.Steps) != 2 {
			return fmt.Errorf("assertions[%d]: fewer_transfers needs exactly two steps", index)
		}
		for _, i := range a.Steps {
			if i < 0 || i >= len(s.Steps) || s.Steps[i].Sync == "" {
				return fmt.Errorf("assertions[%d]: step %d is not a sync step", index, i)
			}
		}
	case AssertReplicaContains:
		if _, ok := s.Snapshots[a.Snapshot]; !ok {
			return fmt.Errorf("assertions[%d]: unknown snapshot %q", index, a.Snapshot)
		}
		synced := slices.ContainsFunc(s.Steps, func(st Step) bool { return st.Sync == a.Snapshot })
		if !synced {
			return fmt.Errorf("assertions[%d]: snapshot %q is never synced", index, a.Snapshot)
		}
	case AssertSessionCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
