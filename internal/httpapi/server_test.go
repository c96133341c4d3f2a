package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lbartoli/parley/internal/config"
	"github.com/lbartoli/parley/internal/dialogue"
	"github.com/lbartoli/parley/internal/history"
)

type nopPublisher struct{}

func (nopPublisher) Publish(string, []byte) error { return nil }

func newTestServer(t *testing.T) (*httptest.Server, *dialogue.Manager, *history.InMemoryStore) {
	t.Helper()
	store := history.NewInMemoryStore()
	manager := dialogue.NewManager(dialogue.Settings{
		SessionTimeout:       time.Minute,
		SpeechMinDuration:    time.Minute,
		SpeechCharsPerSecond: 25,
	}, nopPublisher{}, nil, store, nil)
	t.Cleanup(manager.Close)

	srv := httptest.NewServer(New(config.Config{BindAddr: ":0"}, manager, store).Router())
	t.Cleanup(srv.Close)
	return srv, manager, store
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealthAndReady(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/healthz status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	var ready map[string]any
	decodeBody(t, resp, &ready)
	if ready["status"] != "ready" {
		t.Fatalf("/readyz body = %v", ready)
	}
}

func TestStartSessionEndpoint(t *testing.T) {
	srv, manager, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/session/start", `{"siteId":"kitchen","init":{"type":"action"}}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	var result dialogue.StartResult
	decodeBody(t, resp, &result)
	if result.SessionID == "" || result.Queued {
		t.Fatalf("unexpected result: %+v", result)
	}

	sessions := manager.ActiveSessions()
	if len(sessions) != 1 || sessions[0].ID != result.SessionID {
		t.Fatalf("manager state mismatch: %+v", sessions)
	}
}

func TestStartSessionConflictAndQueue(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/session/start", `{"siteId":"kitchen"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first start status = %d", resp.StatusCode)
	}

	resp = postJSON(t, srv.URL+"/v1/session/start", `{"siteId":"kitchen"}`)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second start status = %d, want 409", resp.StatusCode)
	}
	var errBody errorResponse
	decodeBody(t, resp, &errBody)
	if errBody.Code != "session_active" {
		t.Fatalf("error code = %q", errBody.Code)
	}

	resp = postJSON(t, srv.URL+"/v1/session/start", `{"siteId":"kitchen","init":{"canBeEnqueued":true}}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("queued start status = %d, want 202", resp.StatusCode)
	}
	var result dialogue.StartResult
	decodeBody(t, resp, &result)
	if !result.Queued {
		t.Fatalf("expected queued result: %+v", result)
	}
}

func TestStartSessionBadBody(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/session/start", `{nope`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestEndSessionEndpoint(t *testing.T) {
	srv, manager, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/session/start", `{"siteId":"kitchen"}`)
	var result dialogue.StartResult
	decodeBody(t, resp, &result)

	resp = postJSON(t, srv.URL+"/v1/session/"+result.SessionID+"/end", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("end status = %d, want 200", resp.StatusCode)
	}
	if len(manager.ActiveSessions()) != 0 {
		t.Fatalf("session still live after end")
	}

	resp = postJSON(t, srv.URL+"/v1/session/"+result.SessionID+"/end", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("repeat end status = %d, want 404", resp.StatusCode)
	}
}

func TestListSessionsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	postJSON(t, srv.URL+"/v1/session/start", `{"siteId":"kitchen"}`).Body.Close()
	postJSON(t, srv.URL+"/v1/session/start", `{"siteId":"garage"}`).Body.Close()

	resp, err := http.Get(srv.URL + "/v1/sessions")
	if err != nil {
		t.Fatalf("GET /v1/sessions: %v", err)
	}
	var body struct {
		Sessions []dialogue.Session `json:"sessions"`
	}
	decodeBody(t, resp, &body)
	if len(body.Sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(body.Sessions))
	}
	if body.Sessions[0].SiteID != "garage" || body.Sessions[1].SiteID != "kitchen" {
		t.Fatalf("sessions not ordered by site: %+v", body.Sessions)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	srv, _, store := newTestServer(t)

	ctx := context.Background()
	_ = store.Record(ctx, history.Entry{SiteID: "kitchen", SessionID: "s1", Reason: "success"})
	_ = store.Record(ctx, history.Entry{SiteID: "garage", SessionID: "s2", Reason: "timeout"})

	resp, err := http.Get(srv.URL + "/v1/history?siteId=kitchen")
	if err != nil {
		t.Fatalf("GET /v1/history: %v", err)
	}
	var body struct {
		Entries []history.Entry `json:"entries"`
	}
	decodeBody(t, resp, &body)
	if len(body.Entries) != 1 || body.Entries[0].SessionID != "s1" {
		t.Fatalf("unexpected entries: %+v", body.Entries)
	}

	resp, err = http.Get(srv.URL + "/v1/history?limit=bogus")
	if err != nil {
		t.Fatalf("GET /v1/history: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d, want 400", resp.StatusCode)
	}
}
