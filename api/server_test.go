package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	scriptrunner "github.com/MaksGolikov/ScriptRunner"
	"github.com/MaksGolikov/ScriptRunner/pkg/script"
	"github.com/MaksGolikov/ScriptRunner/testutil"
)

func newTestServer(t *testing.T, provider *testutil.MockProvider) *Server {
	t.Helper()
	runner, err := scriptrunner.New(
		scriptrunner.WithSandboxProvider(provider),
		scriptrunner.WithMaxWorkers(4),
		scriptrunner.WithMirrorInterval(time.Millisecond),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { runner.Close() })
	return New(runner)
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func decodeSnapshot(t *testing.T, w *httptest.ResponseRecorder) script.Snapshot {
	t.Helper()
	var snap script.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode response: %v (%s)", err, w.Body.String())
	}
	return snap
}

func TestExecuteBlocking(t *testing.T) {
	provider := testutil.NewMockProvider()
	provider.OnEvaluate = func(ctx context.Context, sb *testutil.MockSandbox, source string) error {
		sb.WriteStdout("hi\n")
		return nil
	}
	srv := newTestServer(t, provider)

	w := doJSON(t, srv, http.MethodPost, "/scripts/execute", map[string]any{
		"script":   `console.log("hi")`,
		"blocking": true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", w.Code, w.Body.String())
	}
	snap := decodeSnapshot(t, w)
	if snap.Status != script.StatusCompleted {
		t.Errorf("status = %s, want COMPLETED", snap.Status)
	}
	if snap.Stdout != "hi\n" {
		t.Errorf("stdout = %q", snap.Stdout)
	}
}

func TestExecuteNonBlocking(t *testing.T) {
	provider := testutil.NewMockProvider()
	release := make(chan struct{})
	provider.OnEvaluate = func(ctx context.Context, sb *testutil.MockSandbox, source string) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}
	srv := newTestServer(t, provider)
	defer close(release)

	w := doJSON(t, srv, http.MethodPost, "/scripts/execute", map[string]any{
		"script":   "slow",
		"blocking": false,
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
	snap := decodeSnapshot(t, w)
	if snap.ID == 0 {
		t.Error("response should carry the assigned id")
	}
	if snap.Status.Terminal() {
		t.Errorf("status = %s; non-blocking submit must not wait for settlement", snap.Status)
	}
}

func TestExecuteEmptyScript(t *testing.T) {
	srv := newTestServer(t, testutil.NewMockProvider())

	w := doJSON(t, srv, http.MethodPost, "/scripts/execute", map[string]any{
		"script":   "",
		"blocking": true,
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestGetScript(t *testing.T) {
	provider := testutil.NewMockProvider()
	srv := newTestServer(t, provider)

	w := doJSON(t, srv, http.MethodPost, "/scripts/execute", map[string]any{
		"script":   "console.log(1)",
		"blocking": true,
	})
	created := decodeSnapshot(t, w)

	w = doJSON(t, srv, http.MethodGet, "/scripts/1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	got := decodeSnapshot(t, w)
	if got.ID != created.ID {
		t.Errorf("id = %d, want %d", got.ID, created.ID)
	}
}

func TestGetErrors(t *testing.T) {
	srv := newTestServer(t, testutil.NewMockProvider())

	if w := doJSON(t, srv, http.MethodGet, "/scripts/0", nil); w.Code != http.StatusBadRequest {
		t.Errorf("GET /scripts/0 status = %d, want 400", w.Code)
	}
	if w := doJSON(t, srv, http.MethodGet, "/scripts/abc", nil); w.Code != http.StatusBadRequest {
		t.Errorf("GET /scripts/abc status = %d, want 400", w.Code)
	}
	if w := doJSON(t, srv, http.MethodGet, "/scripts/999999", nil); w.Code != http.StatusNotFound {
		t.Errorf("GET /scripts/999999 status = %d, want 404", w.Code)
	}
}

func TestStopScript(t *testing.T) {
	provider := testutil.NewMockProvider()
	started := make(chan struct{})
	provider.OnEvaluate = func(ctx context.Context, sb *testutil.MockSandbox, source string) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}
	srv := newTestServer(t, provider)

	w := doJSON(t, srv, http.MethodPost, "/scripts/execute", map[string]any{"script": "spin"})
	snap := decodeSnapshot(t, w)
	<-started

	w = doJSON(t, srv, http.MethodPost, "/scripts/1/stop", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stop status = %d, want 200 (%s)", w.Code, w.Body.String())
	}
	stopped := decodeSnapshot(t, w)
	if stopped.Status != script.StatusStopped {
		t.Errorf("status = %s, want STOPPED", stopped.Status)
	}
	_ = snap
}

func TestDeleteScript(t *testing.T) {
	provider := testutil.NewMockProvider()
	srv := newTestServer(t, provider)

	doJSON(t, srv, http.MethodPost, "/scripts/execute", map[string]any{
		"script":   "console.log(1)",
		"blocking": true,
	})

	if w := doJSON(t, srv, http.MethodDelete, "/scripts/1", nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", w.Code)
	}
	if w := doJSON(t, srv, http.MethodGet, "/scripts/1", nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", w.Code)
	}
}

func TestListScripts(t *testing.T) {
	provider := testutil.NewMockProvider()
	provider.OnEvaluate = func(ctx context.Context, sb *testutil.MockSandbox, source string) error {
		if source == "fail" {
			return context.DeadlineExceeded
		}
		return nil
	}
	srv := newTestServer(t, provider)

	for _, body := range []string{"ok one", "ok two", "fail"} {
		doJSON(t, srv, http.MethodPost, "/scripts/execute", map[string]any{
			"script":   body,
			"blocking": true,
		})
	}

	w := doJSON(t, srv, http.MethodGet, "/scripts?status=COMPLETED&orderBy=id", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", w.Code)
	}
	var snaps []script.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snaps); err != nil {
		t.Fatal(err)
	}
	if len(snaps) != 2 {
		t.Fatalf("got %d records, want 2 COMPLETED", len(snaps))
	}
	if snaps[0].ID > snaps[1].ID {
		t.Error("orderBy=id should sort ascending")
	}
}
