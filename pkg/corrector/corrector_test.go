package corrector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollguard/pkg/model"
	"rollguard/pkg/retry"
	"rollguard/pkg/snapshot"
	"rollguard/pkg/store"
)

type fakeOps struct {
	mu sync.Mutex

	report     snapshot.TestReport
	harnessErr error
	restartErr error
	archiveErr error

	restarts int
	extracts int

	// gate, when set, blocks RunAll until released. Used to hold a cycle
	// in flight.
	gate    chan struct{}
	entered chan struct{}
}

func (f *fakeOps) RunAll(context.Context) (snapshot.TestReport, error) {
	if f.gate != nil {
		f.entered <- struct{}{}
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.report, f.harnessErr
}

func (f *fakeOps) Restart(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarts++
	return f.restartErr
}

func (f *fakeOps) Archive(context.Context, string, string, []string) (int64, error) {
	if f.archiveErr != nil {
		return 0, f.archiveErr
	}
	return 512, nil
}

func (f *fakeOps) Extract(context.Context, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extracts++
	return nil
}

func (f *fakeOps) Resolve(context.Context) error { return nil }

func (f *fakeOps) CurrentVersion() string { return "abc1234" }

func (f *fakeOps) CountSource() (int, int, error) { return 0, 0, nil }

func (f *fakeOps) CountEndpoints() (int, error) { return 0, nil }

func (f *fakeOps) Dependencies() (map[string]string, error) { return nil, nil }

func (f *fakeOps) Notify(string, string) {}

func (f *fakeOps) restartCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.restarts
}

func (f *fakeOps) extractCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.extracts
}

func newTestCorrector(t *testing.T) (*Corrector, *store.MemoryStore, *fakeOps) {
	t.Helper()
	ops := &fakeOps{report: snapshot.TestReport{Total: 10, Passing: 10}}
	st := store.NewMemoryStore()
	snaps := snapshot.NewManager(st, ops, ops, ops, ops, ops, ops, ops, snapshot.Config{
		WorkDir:     "/srv/app",
		ArchiveDir:  t.TempDir(),
		ServiceName: "app",
	})
	retrier := retry.NewExecutor()
	c := New(st, snaps, ops, ops, ops, retrier, "app", WithStabilization(0))
	return c, st, ops
}

func TestChooseStrategy(t *testing.T) {
	cases := []struct {
		problemType string
		severity    string
		want        string
	}{
		{model.ProblemTestFailure, model.SeverityCritical, model.StrategyRollback},
		{model.ProblemAPIError, model.SeverityCritical, model.StrategyRollback},
		{model.ProblemHealthCheckFailure, model.SeverityCritical, model.StrategyRollback},
		{model.ProblemCrash, model.SeverityCritical, model.StrategyRestart},
		{model.ProblemMemoryLeak, model.SeverityCritical, model.StrategyRestart},
		{model.ProblemTestFailure, model.SeverityHigh, model.StrategyRestart},
		{model.ProblemAPIError, model.SeverityLow, model.StrategyRestart},
		{"something-new", model.SeverityMedium, model.StrategyRestart},
	}
	for _, tc := range cases {
		got := ChooseStrategy(tc.problemType, tc.severity)
		assert.Equal(t, tc.want, got, "%s/%s", tc.problemType, tc.severity)
	}
}

func TestReportProblemRestartSucceeds(t *testing.T) {
	c, st, ops := newTestCorrector(t)

	result := c.ReportProblem(context.Background(), model.ProblemReport{
		Type:     model.ProblemCrash,
		Severity: model.SeverityMedium,
	})

	assert.True(t, result.Success)
	assert.Equal(t, model.StrategyRestart, result.Strategy)
	assert.False(t, result.RollbackTriggered)
	assert.NotEmpty(t, result.AttemptID)
	assert.Equal(t, 1, ops.restartCount())

	attempts, err := st.ListCorrections(0)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.True(t, attempts[0].Success)
	assert.NotZero(t, attempts[0].SnapshotID, "safety snapshot recorded on the attempt")
	assert.Equal(t, result.AttemptID, attempts[0].AttemptID)

	// The safety snapshot itself landed in the store.
	pre, err := st.ListSnapshotsByCategory(model.CategoryPreChange)
	require.NoError(t, err)
	assert.Len(t, pre, 1)
}

func TestReportProblemTestFailureVerifiedByRerun(t *testing.T) {
	c, _, ops := newTestCorrector(t)
	// Suite is green again by the time the corrector re-checks.
	ops.report = snapshot.TestReport{Total: 10, Passing: 10}

	result := c.ReportProblem(context.Background(), model.ProblemReport{
		Type:     model.ProblemTestFailure,
		Severity: model.SeverityMedium,
	})

	assert.True(t, result.Success)
	assert.Equal(t, model.StrategyRestart, result.Strategy)
}

func TestReportProblemMutualExclusion(t *testing.T) {
	c, _, ops := newTestCorrector(t)
	ops.gate = make(chan struct{})
	ops.entered = make(chan struct{}, 1)

	first := make(chan model.CorrectionResult, 1)
	go func() {
		first <- c.ReportProblem(context.Background(), model.ProblemReport{
			Type:     model.ProblemCrash,
			Severity: model.SeverityLow,
		})
	}()

	// Wait until the first cycle is inside its safety-snapshot capture.
	select {
	case <-ops.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first cycle never started")
	}

	second := c.ReportProblem(context.Background(), model.ProblemReport{
		Type:     model.ProblemCrash,
		Severity: model.SeverityLow,
	})
	assert.False(t, second.Success)
	assert.Equal(t, "correction already in progress", second.Message)
	assert.Empty(t, second.Strategy)

	close(ops.gate)
	select {
	case res := <-first:
		assert.True(t, res.Success)
	case <-time.After(2 * time.Second):
		t.Fatal("first cycle never finished")
	}

	// With the cycle done a new report is accepted again.
	ops.gate = nil
	third := c.ReportProblem(context.Background(), model.ProblemReport{
		Type:     model.ProblemCrash,
		Severity: model.SeverityLow,
	})
	assert.True(t, third.Success)
}

func TestCriticalTestFailureRollsBack(t *testing.T) {
	c, st, ops := newTestCorrector(t)

	// A known-good snapshot exists from before the regression.
	_, err := c.snaps.Create(context.Background(), model.CategoryManual, snapshot.CreateOptions{})
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	// The suite is now failing and stays failing through re-verification.
	ops.mu.Lock()
	ops.report = snapshot.TestReport{Total: 10, Passing: 7, Failing: 3}
	ops.mu.Unlock()

	result := c.ReportProblem(context.Background(), model.ProblemReport{
		Type:     model.ProblemTestFailure,
		Severity: model.SeverityCritical,
	})

	assert.False(t, result.Success)
	assert.Equal(t, model.StrategyRollback, result.Strategy)
	assert.True(t, result.RollbackTriggered)
	assert.Equal(t, 1, ops.extractCount(), "rollback extracted an archive")

	attempts, _ := st.ListCorrections(0)
	require.Len(t, attempts, 1)
	assert.True(t, attempts[0].RollbackTriggered)
	assert.True(t, attempts[0].RollbackSucceeded)

	records, _ := st.ListRestores(0)
	require.Len(t, records, 1)
	assert.Equal(t, model.ReasonAutoCorrection, records[0].Reason)
	assert.Equal(t, "corrector", records[0].RequestedBy)
	assert.NotEqual(t, attempts[0].SnapshotID, records[0].SnapshotID,
		"rollback must target a snapshot other than the safety snapshot")
}

func TestRollbackSkippedWithoutPriorSnapshot(t *testing.T) {
	c, st, ops := newTestCorrector(t)
	ops.report = snapshot.TestReport{Total: 10, Passing: 7, Failing: 3}

	result := c.ReportProblem(context.Background(), model.ProblemReport{
		Type:     model.ProblemTestFailure,
		Severity: model.SeverityCritical,
	})

	assert.False(t, result.Success)
	assert.True(t, result.RollbackTriggered)
	assert.Zero(t, ops.extractCount(), "nothing to restore")

	attempts, _ := st.ListCorrections(0)
	require.Len(t, attempts, 1)
	assert.False(t, attempts[0].RollbackSucceeded)

	records, _ := st.ListRestores(0)
	assert.Empty(t, records)
}

func TestLowSeverityFailureDoesNotRollBack(t *testing.T) {
	c, st, ops := newTestCorrector(t)
	ops.report = snapshot.TestReport{Total: 10, Passing: 7, Failing: 3}

	result := c.ReportProblem(context.Background(), model.ProblemReport{
		Type:     model.ProblemTestFailure,
		Severity: model.SeverityLow,
	})

	assert.False(t, result.Success)
	assert.False(t, result.RollbackTriggered)
	assert.Zero(t, ops.extractCount())

	attempts, _ := st.ListCorrections(0)
	require.Len(t, attempts, 1)
	assert.False(t, attempts[0].RollbackTriggered)
}

func TestSafetySnapshotFailureAbortsCycle(t *testing.T) {
	c, st, ops := newTestCorrector(t)
	ops.archiveErr = errors.New("disk full")

	result := c.ReportProblem(context.Background(), model.ProblemReport{
		Type:     model.ProblemCrash,
		Severity: model.SeverityMedium,
	})

	assert.False(t, result.Success)
	assert.Equal(t, model.StrategyError, result.Strategy)
	assert.Zero(t, ops.restartCount(), "no remediation without a safety snapshot")

	attempts, _ := st.ListCorrections(0)
	require.Len(t, attempts, 1)
	assert.Equal(t, model.StrategyError, attempts[0].Strategy)
}

func TestRestartFailureTriggersRollbackOnHighSeverity(t *testing.T) {
	c, st, ops := newTestCorrector(t)

	_, err := c.snaps.Create(context.Background(), model.CategoryManual, snapshot.CreateOptions{})
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	ops.mu.Lock()
	ops.restartErr = errors.New("unit failed to start")
	ops.mu.Unlock()

	done := make(chan model.CorrectionResult, 1)
	go func() {
		done <- c.ReportProblem(context.Background(), model.ProblemReport{
			Type:     model.ProblemCrash,
			Severity: model.SeverityHigh,
		})
	}()

	var result model.CorrectionResult
	select {
	case result = <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("correction cycle did not finish")
	}

	assert.False(t, result.Success)
	assert.Equal(t, model.StrategyRestart, result.Strategy)
	assert.True(t, result.RollbackTriggered)

	attempts, _ := st.ListCorrections(0)
	require.Len(t, attempts, 1)
	assert.True(t, attempts[0].RollbackTriggered)
}
