package sysops

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollguard/pkg/snapshot"
)

func TestParseSummary(t *testing.T) {
	cases := []struct {
		name string
		out  string
		want snapshot.TestReport
	}{
		{
			name: "both counts",
			out:  "Test Suites: 4 passed\nTests: 120 passed, 3 failed\n",
			want: snapshot.TestReport{Total: 7, Passing: 4, Failing: 3},
		},
		{
			name: "jest style single line",
			out:  "Tests:       42 passed, 0 failed, 42 total",
			want: snapshot.TestReport{Total: 42, Passing: 42, Failing: 0},
		},
		{
			name: "only passed",
			out:  "ok: 15 passed",
			want: snapshot.TestReport{Total: 15, Passing: 15},
		},
		{
			name: "only failed",
			out:  "2 failed",
			want: snapshot.TestReport{Total: 2, Failing: 2},
		},
		{
			name: "no recognizable summary",
			out:  "building...\ndone\n",
			want: snapshot.TestReport{},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseSummary(tc.out)
			assert.Equal(t, tc.want.Total, got.Total)
			assert.Equal(t, tc.want.Passing, got.Passing)
			assert.Equal(t, tc.want.Failing, got.Failing)
			assert.Equal(t, tc.out, got.Output)
		})
	}
}

func TestCommandHarnessRunAll(t *testing.T) {
	h := CommandHarness{Command: `echo "10 passed, 2 failed"`}
	report, err := h.RunAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, report.Total)
	assert.Equal(t, 10, report.Passing)
	assert.Equal(t, 2, report.Failing)
}

func TestCommandHarnessFailingExitWithCounts(t *testing.T) {
	// A non-zero exit with a parsable summary is an outcome, not an error.
	h := CommandHarness{Command: `echo "8 passed, 1 failed"; exit 1`}
	report, err := h.RunAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failing)
}

func TestCommandHarnessUnrunnable(t *testing.T) {
	h := CommandHarness{Command: `exit 2`}
	_, err := h.RunAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "harness failed")
}

func TestCommandHarnessTimeout(t *testing.T) {
	h := CommandHarness{Command: "sleep 5", Timeout: 50 * time.Millisecond}
	_, err := h.RunAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}
