package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollguard/pkg/corrector"
	"rollguard/pkg/model"
	"rollguard/pkg/retry"
	"rollguard/pkg/snapshot"
	"rollguard/pkg/store"
	"rollguard/pkg/verifier"
)

type fakeOps struct {
	report snapshot.TestReport
}

func (f *fakeOps) RunAll(context.Context) (snapshot.TestReport, error) { return f.report, nil }

func (f *fakeOps) Archive(context.Context, string, string, []string) (int64, error) {
	return 256, nil
}

func (f *fakeOps) Extract(context.Context, string, string) error { return nil }

func (f *fakeOps) Restart(context.Context, string) error { return nil }

func (f *fakeOps) Resolve(context.Context) error { return nil }

func (f *fakeOps) CurrentVersion() string { return "abc1234" }

func (f *fakeOps) CountSource() (int, int, error) { return 0, 0, nil }

func (f *fakeOps) CountEndpoints() (int, error) { return 0, nil }

func (f *fakeOps) Dependencies() (map[string]string, error) { return nil, nil }

func (f *fakeOps) Notify(string, string) {}

func newTestServer(t *testing.T, token string) (*httptest.Server, *store.MemoryStore) {
	t.Helper()
	ops := &fakeOps{report: snapshot.TestReport{Total: 10, Passing: 10}}
	st := store.NewMemoryStore()
	snaps := snapshot.NewManager(st, ops, ops, ops, ops, ops, ops, ops, snapshot.Config{
		WorkDir:     "/srv/app",
		ArchiveDir:  t.TempDir(),
		ServiceName: "app",
	})
	corr := corrector.New(st, snaps, ops, ops, ops, retry.NewExecutor(), "app", corrector.WithStabilization(0))
	verif := verifier.New(st, snaps, ops, ops)

	mux := http.NewServeMux()
	h := &Handlers{
		Store:     st,
		Snapshots: snaps,
		Corrector: corr,
		Verifier:  verif,
		Retrier:   retry.NewExecutor(),
		Hub:       NewWSHub(),
	}
	h.Register(mux, AuthFunc(token))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, st
}

func postJSON(t *testing.T, url string, payload interface{}, headers map[string]string) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, "")
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	srv, _ := newTestServer(t, "secret")

	resp, err := http.Get(srv.URL + "/api/v1/snapshots")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/snapshots", nil)
	req.Header.Set("X-Auth-Token", "secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Bearer form of the same token is accepted too.
	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/api/v1/snapshots", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/api/v1/snapshots", nil)
	req.Header.Set("X-Auth-Token", "wrong")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSnapshotCreateAndList(t *testing.T) {
	srv, st := newTestServer(t, "")

	resp := postJSON(t, srv.URL+"/api/v1/snapshots", map[string]interface{}{
		"description": "release 42",
		"requestedBy": "alice",
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap model.Snapshot
	decode(t, resp, &snap)
	assert.NotZero(t, snap.ID)
	assert.Equal(t, model.CategoryManual, snap.Category, "category defaults to manual")
	assert.Equal(t, "release 42", snap.Description)

	listResp, err := http.Get(srv.URL + "/api/v1/snapshots")
	require.NoError(t, err)
	var list struct {
		Items []model.Snapshot `json:"items"`
	}
	decode(t, listResp, &list)
	require.Len(t, list.Items, 1)

	audit, err := st.ListAudit(10)
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.Equal(t, "alice", audit[0].Actor)
	assert.Equal(t, "snapshot_create", audit[0].Action)
}

func TestSnapshotCreateRejectsUnknownCategory(t *testing.T) {
	srv, _ := newTestServer(t, "")
	resp := postJSON(t, srv.URL+"/api/v1/snapshots", map[string]interface{}{
		"category": "hourly",
	}, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRestoreUnknownSnapshot(t *testing.T) {
	srv, _ := newTestServer(t, "")
	resp := postJSON(t, srv.URL+"/api/v1/snapshots/restore", map[string]interface{}{
		"id": 99,
	}, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRestoreRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t, "")
	resp := postJSON(t, srv.URL+"/api/v1/snapshots", map[string]interface{}{}, nil)
	var snap model.Snapshot
	decode(t, resp, &snap)

	resp = postJSON(t, srv.URL+"/api/v1/snapshots/restore", map[string]interface{}{
		"id":          snap.ID,
		"requestedBy": "alice",
	}, nil)
	var out struct {
		Success bool `json:"success"`
	}
	decode(t, resp, &out)
	assert.True(t, out.Success)
}

func TestGoldenRestoreWithoutGolden(t *testing.T) {
	srv, _ := newTestServer(t, "")
	resp := postJSON(t, srv.URL+"/api/v1/snapshots/golden/restore", map[string]interface{}{}, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestMarkGoldenThenRestore(t *testing.T) {
	srv, st := newTestServer(t, "")
	resp := postJSON(t, srv.URL+"/api/v1/snapshots", map[string]interface{}{}, nil)
	var snap model.Snapshot
	decode(t, resp, &snap)

	resp = postJSON(t, srv.URL+"/api/v1/snapshots/golden", map[string]interface{}{
		"id": snap.ID,
	}, nil)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	policy, err := st.GetSnapshotPolicy()
	require.NoError(t, err)
	assert.Equal(t, snap.ID, policy.GoldenSnapshotID)

	resp = postJSON(t, srv.URL+"/api/v1/snapshots/golden/restore", map[string]interface{}{}, nil)
	var out struct {
		Success bool `json:"success"`
	}
	decode(t, resp, &out)
	assert.True(t, out.Success)
}

func TestProblemReportEndpoint(t *testing.T) {
	srv, st := newTestServer(t, "")
	resp := postJSON(t, srv.URL+"/api/v1/problems", map[string]interface{}{
		"type":        model.ProblemCrash,
		"description": "worker died",
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result model.CorrectionResult
	decode(t, resp, &result)
	assert.True(t, result.Success)
	assert.Equal(t, model.StrategyRestart, result.Strategy)

	attempts, err := st.ListCorrections(10)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, model.SeverityMedium, attempts[0].Severity, "severity defaults to medium")
}

func TestProblemReportRequiresType(t *testing.T) {
	srv, _ := newTestServer(t, "")
	resp := postJSON(t, srv.URL+"/api/v1/problems", map[string]interface{}{
		"severity": model.SeverityHigh,
	}, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestVerifyRunEndpoint(t *testing.T) {
	srv, st := newTestServer(t, "")
	resp := postJSON(t, srv.URL+"/api/v1/verify/run", map[string]interface{}{}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var run model.VerificationRun
	decode(t, resp, &run)
	assert.Equal(t, model.RunSuccess, run.Status)

	runs, err := st.ListRuns(10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestVerifierConfigRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t, "")

	resp, err := http.Get(srv.URL + "/api/v1/verifier/config")
	require.NoError(t, err)
	var cfg model.VerifierConfig
	decode(t, resp, &cfg)
	assert.Equal(t, "02:00", cfg.Schedule)

	cfg.Enabled = false
	cfg.Schedule = "@every 6h"
	cfg.FailureThresholdPercent = 10
	body, _ := json.Marshal(cfg)
	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/api/v1/verifier/config", bytes.NewReader(body))
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	var saved model.VerifierConfig
	decode(t, resp, &saved)
	assert.Equal(t, "@every 6h", saved.Schedule)
	assert.Equal(t, float64(10), saved.FailureThresholdPercent)
}

func TestPolicyConfigValidation(t *testing.T) {
	srv, _ := newTestServer(t, "")
	body := strings.NewReader(`{"maxRetained": 0}`)
	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/api/v1/policy/config", body)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRetryStatsRequiresName(t *testing.T) {
	srv, _ := newTestServer(t, "")
	resp, err := http.Get(srv.URL + "/api/v1/retry/stats")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/v1/retry/stats?name=service-restart")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListEndpointsRejectNonGet(t *testing.T) {
	srv, _ := newTestServer(t, "")
	for _, path := range []string{"/api/v1/restores", "/api/v1/corrections", "/api/v1/runs", "/api/v1/audit"} {
		resp := postJSON(t, srv.URL+path, map[string]interface{}{}, nil)
		resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, path)
	}
}
