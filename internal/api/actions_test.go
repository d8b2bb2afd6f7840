package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/seantiz/anvil/internal/engine"
	"github.com/seantiz/anvil/internal/model"
)

func mustBuild(t *testing.T, srv *Server, kind string) engine.Func {
	t.Helper()
	run, err := srv.kinds.Build(kind, nil)
	if err != nil {
		t.Fatalf("Build(%q): %v", kind, err)
	}
	return run
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeInfo(t *testing.T, resp *http.Response) engine.ActionInfo {
	t.Helper()
	var info engine.ActionInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return info
}

func TestSubmitActionAccepted(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/actions", `{"kind":"sleep","name":"nap","params":{"duration_ms":1}}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	info := decodeInfo(t, resp)
	if info.Ref == "" {
		t.Error("ref is empty")
	}
	if info.Name != "nap" {
		t.Errorf("name = %q, want nap", info.Name)
	}
	if info.Discipline != model.DisciplineGlobal {
		t.Errorf("discipline = %q, want global", info.Discipline)
	}
}

func TestSubmitActionWait(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/actions", `{"kind":"fail","params":{"message":"nope"},"wait":true}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	info := decodeInfo(t, resp)
	if info.State != engine.StateCompleted.String() {
		t.Errorf("state = %q, want completed", info.State)
	}
	if !strings.Contains(info.Error, "nope") {
		t.Errorf("error = %q, want it to mention nope", info.Error)
	}
	if info.Name != "fail" {
		t.Errorf("name = %q, want kind name as default", info.Name)
	}
}

func TestSubmitActionWaitTimeout(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/actions", `{"kind":"sleep","params":{"duration_ms":5000},"wait":true,"timeout_ms":20}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	if info := decodeInfo(t, resp); info.State == engine.StateCompleted.String() {
		t.Error("action should still be in flight")
	}
}

func TestSubmitActionValidation(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing kind", `{"name":"x"}`},
		{"unknown kind", `{"kind":"teleport"}`},
		{"invalid params", `{"kind":"sleep","params":{"duration_ms":-5}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/v1/actions", tt.body)
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestSubmitActionAfterShutdown(t *testing.T) {
	srv := newTestServer(t)
	srv.engine.Shutdown(false)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/actions", `{"kind":"sleep"}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestGetActionLiveAndJournal(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/actions", `{"kind":"sleep","wait":true}`)
	submitted := decodeInfo(t, resp)
	resp.Body.Close()

	resp, err := http.Get(ts.URL + "/v1/actions/" + submitted.Ref)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	live := decodeInfo(t, resp)
	resp.Body.Close()
	if live.ID != submitted.ID || live.State != engine.StateCompleted.String() {
		t.Errorf("live view = %+v", live)
	}

	// A journal entry that is not tracked live.
	now := time.Now().UTC()
	rec := &model.ActionRecord{
		Ref: model.NewRef(), ActionID: 99, Name: "old", Discipline: model.DisciplineChained,
		Outcome: model.OutcomeSucceeded, QueuedAt: now, FinishedAt: now,
	}
	if err := srv.store.RecordAction(context.Background(), rec); err != nil {
		t.Fatalf("RecordAction: %v", err)
	}

	resp, err = http.Get(ts.URL + "/v1/actions/" + rec.Ref)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	journal := decodeInfo(t, resp)
	if journal.ID != 99 || journal.Discipline != model.DisciplineChained || journal.State != "completed" {
		t.Errorf("journal view = %+v", journal)
	}
}

func TestGetActionNotFound(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/actions/nonexistent")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestListActionsFromJournal(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/actions", `{"kind":"chain","params":{"count":2},"wait":true}`)
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.engine.WaitForAll(ctx); err != nil {
		t.Fatalf("WaitForAll: %v", err)
	}

	resp, err := http.Get(ts.URL + "/v1/actions?limit=2")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var list listActionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Total != 3 {
		t.Errorf("total = %d, want 3", list.Total)
	}
	if len(list.Actions) != 2 || list.Limit != 2 {
		t.Errorf("got %d actions with limit %d, want 2 and 2", len(list.Actions), list.Limit)
	}
}

func TestListActionsEmpty(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/actions")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"actions":[]`) {
		t.Errorf("body = %s, want empty actions array", body)
	}
}

func TestListKinds(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/kinds")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var kinds []struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&kinds); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(kinds) != 4 {
		t.Errorf("got %d kinds, want 4", len(kinds))
	}
}
