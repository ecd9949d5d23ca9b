package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const statusBody = `{
  "status": "ok",
  "ts": "2026-01-02T10:00:00Z",
  "version": "0.1.0",
  "scheduler": {"state": "idle", "enabled": true, "pollingInterval": "1m0s", "pending": 0},
  "files": [
    {"path": "/w/churn/recipes/a.py", "state": "completed", "conflictState": "none"},
    {"path": "/w/churn/recipes/b.py", "state": "completed", "conflictState": "conflicted"},
    {"path": "/w/churn/recipes/c.py", "state": "error", "conflictState": "none", "error": "timeout"}
  ],
  "summary": {"pending": 0, "syncing": 0, "completed": 2, "error": 1, "conflicted": 1}
}`

func TestFetchStatus(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/v1/status" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(statusBody))
	}))
	defer srv.Close()

	status, err := fetchStatus(context.Background(), srv.URL, "secret")
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "ok", status.Status)
	assert.True(t, status.Scheduler.Enabled)
	assert.Equal(t, "1m0s", status.Scheduler.PollingInterval)
	assert.Len(t, status.Files, 3)
	assert.Equal(t, 1, status.Summary.Conflicted)

	var out bytes.Buffer
	printStatus(&out, status)
	got := stripANSI(out.String())
	assert.Contains(t, got, "background sync every 1m0s, idle")
	assert.Contains(t, got, "2 synced")
	assert.Contains(t, got, "1 conflict,")
	assert.Contains(t, got, "/w/churn/recipes/b.py (conflict)")
	assert.Contains(t, got, "/w/churn/recipes/c.py: timeout")
	assert.NotContains(t, got, "a.py")
}

func TestFetchStatus_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":"ERR_UNAUTHORIZED","error":"unauthorized"}`))
	}))
	defer srv.Close()

	_, err := fetchStatus(context.Background(), srv.URL, "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERR_UNAUTHORIZED")
}

func TestFetchStatus_DaemonDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := fetchStatus(context.Background(), url, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daemon not reachable")
}

func TestPrintStatus_NextRun(t *testing.T) {
	next := time.Now().Add(2*time.Minute + 30*time.Second)
	s := &daemonStatus{Version: "0.1.0"}
	s.Scheduler.State = "scheduled"
	s.Scheduler.NextRun = &next
	s.Scheduler.Pending = 3

	var out bytes.Buffer
	printStatus(&out, s)
	got := stripANSI(out.String())
	assert.Contains(t, got, "background sync off, scheduled")
	assert.Contains(t, got, "next pass 2 minutes from now")
	assert.Contains(t, got, "3 queued")
}
