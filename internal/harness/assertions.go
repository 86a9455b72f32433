package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/assetsync/internal/checksum"
	"github.com/roach88/assetsync/internal/replica"
	"github.com/roach88/assetsync/internal/store"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %s %s", event.Seq, event.Step, event.Snapshot, shortRoot(event.Root))
		if event.Stats != nil {
			fmt.Fprintf(&buf, " requested=%d skipped=%d", event.Stats.Requested, event.Stats.Skipped)
		}
		buf.WriteByte('\n')
	}
	return buf.String()
}

func shortRoot(root string) string {
	if len(root) > 12 {
		return root[:12]
	}
	return root
}

// assertRoots compares the roots of two snapshots.
func assertRoots(result *Result, assertion Assertion, wantSame bool) error {
	a, b := assertion.Snapshots[0], assertion.Snapshots[1]
	ra, okA := result.Roots[a]
	rb, okB := result.Roots[b]
	if !okA || !okB {
		return &AssertionError{
			Type:     assertion.Type,
			Expected: fmt.Sprintf("snapshots %s and %s built", a, b),
			Actual:   "at least one snapshot was never built",
			Trace:    result.Trace,
		}
	}
	if (ra == rb) == wantSame {
		return nil
	}
	relation := "different"
	if wantSame {
		relation = "equal"
	}
	return &AssertionError{
		Type:     assertion.Type,
		Expected: fmt.Sprintf("%s roots for %s and %s", relation, a, b),
		Actual:   fmt.Sprintf("%s=%s %s=%s", a, shortRoot(ra), b, shortRoot(rb)),
		Trace:    result.Trace,
	}
}

// assertFewerTransfers checks that the second sync requested fewer
// checksums than the first.
func assertFewerTransfers(result *Result, assertion Assertion) error {
	first, okFirst := result.syncEvent(assertion.Steps[0])
	second, okSecond := result.syncEvent(assertion.Steps[1])
	if !okFirst || !okSecond {
		return &AssertionError{
			Type:     AssertFewerTransfers,
			Expected: fmt.Sprintf("sync steps %d and %d in trace", assertion.Steps[0], assertion.Steps[1]),
			Actual:   "step missing or not a sync",
			Trace:    result.Trace,
		}
	}
	if second.Stats.Requested < first.Stats.Requested {
		return nil
	}
	return &AssertionError{
		Type:     AssertFewerTransfers,
		Expected: fmt.Sprintf("step %d requests fewer than %d", assertion.Steps[1], first.Stats.Requested),
		Actual:   fmt.Sprintf("%d requested", second.Stats.Requested),
		Trace:    result.Trace,
	}
}

// assertReplicaContains reconstructs a snapshot from the replica alone.
func assertReplicaContains(ctx context.Context, syncer *replica.Syncer, result *Result, assertion Assertion) error {
	fail := func(actual string) error {
		return &AssertionError{
			Type:     AssertReplicaContains,
			Expected: fmt.Sprintf("%s reconstructs with %d project(s), %d document(s)", assertion.Snapshot, assertion.Projects, assertion.Documents),
			Actual:   actual,
			Trace:    result.Trace,
		}
	}

	root, err := checksum.Parse(result.Roots[assertion.Snapshot])
	if err != nil {
		return fail(fmt.Sprintf("no root: %v", err))
	}
	info, err := syncer.Materialize(ctx, root)
	if err != nil {
		return fail(err.Error())
	}
	if len(info.Projects) != assertion.Projects || info.DocumentCount() != assertion.Documents {
		return fail(fmt.Sprintf("%d project(s), %d document(s)", len(info.Projects), info.DocumentCount()))
	}
	return nil
}

// assertSessionCount checks the number of recorded sessions.
func assertSessionCount(ctx context.Context, st *store.Store, result *Result, assertion Assertion) error {
	sessions, err := st.Sessions(ctx)
	if err != nil {
		return err
	}
	if len(sessions) == assertion.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertSessionCount,
		Expected: fmt.Sprintf("%d session(s)", assertion.Count),
		Actual:   fmt.Sprintf("%d session(s)", len(sessions)),
		Trace:    result.Trace,
	}
}

// AssertionContext provides replica access for assertions that need it.
type AssertionContext struct {
	Store  *store.Store
	Syncer *replica.Syncer
	Ctx    context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertSameRoot:
			err = assertRoots(result, assertion, true)
		case AssertDifferentRoot:
			err = assertRoots(result, assertion, false)
		case AssertFewerTransfers:
			err = assertFewerTransfers(result, assertion)
		case AssertReplicaContains:
			if actx == nil || actx.Syncer == nil {
				err = fmt.Errorf("assertion[%d]: replica_contains requires replica context", i)
			} else {
				err = assertReplicaContains(actx.Ctx, actx.Syncer, result, assertion)
			}
		case AssertSessionCount:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: session_count requires database context", i)
			} else {
				err = assertSessionCount(actx.Ctx, actx.Store, result, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
