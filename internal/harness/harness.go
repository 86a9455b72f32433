package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/assetsync/internal/checksum"
	"github.com/roach88/assetsync/internal/cli"
	"github.com/roach88/assetsync/internal/engine"
	"github.com/roach88/assetsync/internal/ir"
	"github.com/roach88/assetsync/internal/replica"
	"github.com/roach88/assetsync/internal/store"
)

// Harness holds the producer and replica of one scenario run.
type Harness struct {
	store   *store.Store
	engine  *engine.Engine
	syncer  *replica.Syncer
	clock   *engine.Clock
	logger  *slog.Logger
	states  map[string]*ir.SolutionState
	handles map[string]engine.Handle
	roots   map[string]checksum.Checksum
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory replica and a fresh engine.
// An error is returned when a step cannot execute at all; failed
// expectations and assertions are reported in the result instead.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := engine.New(engine.WithLogger(logger))
	h := &Harness{
		store:  st,
		engine: eng,
		syncer: replica.New(st, eng.Serializer(),
			replica.WithLogger(logger),
			replica.WithTokenGenerator(replica.NewFixedGenerator(scenario.SessionTokens...)),
		),
		clock:   engine.NewClock(),
		logger:  logger,
		states:  make(map[string]*ir.SolutionState, len(scenario.Snapshots)),
		handles: make(map[string]engine.Handle),
		roots:   make(map[string]checksum.Checksum),
	}

	for name, path := range scenario.Snapshots {
		m, err := cli.LoadManifest(path)
		if err != nil {
			return nil, fmt.Errorf("snapshot %q: %w", name, err)
		}
		if h.states[name], err = m.Solution(); err != nil {
			return nil, fmt.Errorf("snapshot %q: %w", name, err)
		}
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}
	for name, root := range h.roots {
		result.Roots[name] = root.String()
	}

	actx := &AssertionContext{Store: st, Syncer: h.syncer, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) error {
	typ, snap := step.kind()
	event := TraceEvent{Seq: h.clock.Next(), Step: typ, Snapshot: snap}

	switch typ {
	case StepBuild:
		root, err := h.build(ctx, snap)
		if err != nil {
			return err
		}
		event.Root = root.String()

	case StepSync:
		root, err := h.build(ctx, snap)
		if err != nil {
			return err
		}
		stats, err := h.syncer.Sync(ctx, root, h.engine.Fetcher(h.handles[snap]))
		if err != nil {
			return fmt.Errorf("sync %q: %w", snap, err)
		}
		event.Root = root.String()
		event.Stats = &stats
		for _, msg := range checkExpect(i, step.Expect, stats) {
			result.AddError(msg)
		}

	case StepDispose:
		handle, ok := h.handles[snap]
		if !ok {
			return fmt.Errorf("dispose %q: snapshot is not built", snap)
		}
		if err := h.engine.DisposeScope(handle); err != nil {
			return fmt.Errorf("dispose %q: %w", snap, err)
		}
		delete(h.handles, snap)
		event.Root = h.roots[snap].String()
	}

	h.logger.Debug("scenario step", "seq", event.Seq, "step", typ, "snapshot", snap)
	result.Trace = append(result.Trace, event)
	return nil
}

// build returns the root of snap, building a scope for it when none is live.
func (h *Harness) build(ctx context.Context, snap string) (checksum.Checksum, error) {
	if _, ok := h.handles[snap]; ok {
		return h.roots[snap], nil
	}
	handle, root, err := h.engine.BuildScope(ctx, h.states[snap])
	if err != nil {
		return checksum.Checksum{}, fmt.Errorf("build %q: %w", snap, err)
	}
	h.handles[snap] = handle
	h.roots[snap] = root
	return root, nil
}

// checkExpect compares sync stats with the step's expect clause.
func checkExpect(i int, expect *ExpectClause, stats replica.Stats) []string {
	if expect == nil {
		return nil
	}
	var errs []string
	check := func(name string, want *int, got int) {
		if want != nil && *want != got {
			errs = append(errs, fmt.Sprintf("steps[%d]: %s: expected %d, got %d", i, name, *want, got))
		}
	}
	check("requested", expect.Requested, stats.Requested)
	check("fetched", expect.Fetched, stats.Fetched)
	check("skipped", expect.Skipped, stats.Skipped)
	check("stored", expect.Stored, stats.Stored)
	return errs
}
