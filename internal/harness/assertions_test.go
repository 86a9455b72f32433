package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/assetsync/internal/replica"
)

func resultWithSyncs(requested ...int) *Result {
	r := NewResult()
	for i, n := range requested {
		r.Trace = append(r.Trace, TraceEvent{
			Seq:      int64(i + 1),
			Step:     StepSync,
			Snapshot: "snap",
			Root:     "aaaaaaaaaaaaaaaaaaaa",
			Stats:    &replica.Stats{Requested: n},
		})
	}
	return r
}

func TestAssertRoots(t *testing.T) {
	r := NewResult()
	r.Roots["a"] = "1111"
	r.Roots["b"] = "1111"
	r.Roots["c"] = "2222"

	assert.NoError(t, assertRoots(r, Assertion{Type: AssertSameRoot, Snapshots: []string{"a", "b"}}, true))
	assert.NoError(t, assertRoots(r, Assertion{Type: AssertDifferentRoot, Snapshots: []string{"a", "c"}}, false))

	err := assertRoots(r, Assertion{Type: AssertSameRoot, Snapshots: []string{"a", "c"}}, true)
	require.Error(t, err)
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "equal roots for a and c", ae.Expected)
	assert.Equal(t, "a=1111 c=2222", ae.Actual)

	err = assertRoots(r, Assertion{Type: AssertDifferentRoot, Snapshots: []string{"a", "b"}}, false)
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "different roots for a and b", ae.Expected)

	err = assertRoots(r, Assertion{Type: AssertSameRoot, Snapshots: []string{"a", "missing"}}, true)
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "at least one snapshot was never built", ae.Actual)
}

func TestAssertFewerTransfers(t *testing.T) {
	r := resultWithSyncs(10, 3, 10)

	assert.NoError(t, assertFewerTransfers(r, Assertion{Steps: []int{0, 1}}))

	err := assertFewerTransfers(r, Assertion{Steps: []int{0, 2}})
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "10 requested", ae.Actual)

	r.Trace = append(r.Trace, TraceEvent{Seq: 4, Step: StepDispose, Snapshot: "snap"})
	err = assertFewerTransfers(r, Assertion{Steps: []int{0, 3}})
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "step missing or not a sync", ae.Actual)
}

func TestAssertionError_IncludesTrace(t *testing.T) {
	r := resultWithSyncs(7)
	err := &AssertionError{Type: AssertSessionCount, Expected: "1 session(s)", Actual: "0 session(s)", Trace: r.Trace}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: session_count")
	assert.Contains(t, msg, "Expected: 1 session(s)")
	assert.Contains(t, msg, "Actual: 0 session(s)")
	assert.Contains(t, msg, "[1] sync snap aaaaaaaaaaaa requested=7 skipped=0")
}

func TestEvaluateAssertions_RequiresContext(t *testing.T) {
	r := resultWithSyncs(1)
	errs := EvaluateAssertions(r, []Assertion{
		{Type: AssertReplicaContains, Snapshot: "snap"},
		{Type: AssertSessionCount},
		{Type: "bogus"},
	}, nil)

	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], "replica_contains requires replica context")
	assert.Contains(t, errs[1], "session_count requires database context")
	assert.Contains(t, errs[2], `unknown assertion type "bogus"`)
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)
	r.AddError("boom")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"boom"}, r.Errors)
}
