package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/complyport/screening-relay/internal/config"
	"github.com/complyport/screening-relay/internal/model"
	"github.com/complyport/screening-relay/internal/relay"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := config.Config{
		Relay: config.RelayConfig{
			Capacity:          10,
			KeepaliveInterval: time.Second,
			Source:            "complyadvantage",
		},
	}

	srv := NewServer(cfg, Options{Registerer: prometheus.NewRegistry()})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return ts
}

func postJSON(t *testing.T, url string, body []byte) (*http.Response, map[string]any) {
	t.Helper()

	res, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer res.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	return res, out
}

func TestWebhookIngestAndPollRoundTrip(t *testing.T) {
	ts := newTestServer(t)

	res, ack := postJSON(t, ts.URL+"/webhook/alert", []byte(`{"customerId":"42","searchQueryId":"Q1","isSanctioned":true}`))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 got %d", res.StatusCode)
	}
	if ack["status"] != "ok" || ack["eventId"] == "" {
		t.Fatalf("bad ack: %v", ack)
	}

	// poller with cursor 0 receives the event with the derived decision
	httpRes, err := http.Get(ts.URL + "/api/events?since=0")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	defer httpRes.Body.Close()

	var poll relay.PollResult
	if err := json.NewDecoder(httpRes.Body).Decode(&poll); err != nil {
		t.Fatalf("decode poll: %v", err)
	}
	if len(poll.Events) != 1 {
		t.Fatalf("expected 1 event got %d", len(poll.Events))
	}

	evt := poll.Events[0]
	if evt.CustomerID != "42" || evt.SearchQueryID != "Q1" {
		t.Fatalf("correlation fields lost: %+v", evt)
	}
	if evt.Flags.SanctionDecision != model.DecisionHit {
		t.Fatalf("expected derived HIT got %q", evt.Flags.SanctionDecision)
	}
	if evt.Tenant != "unknown" {
		t.Fatalf("expected unknown tenant got %q", evt.Tenant)
	}

	// re-polling with the returned cursor yields an empty list
	httpRes2, err := http.Get(ts.URL + "/api/events?since=" + jsonNumber(poll.LastEventID))
	if err != nil {
		t.Fatalf("re-poll: %v", err)
	}
	defer httpRes2.Body.Close()

	var poll2 relay.PollResult
	if err := json.NewDecoder(httpRes2.Body).Decode(&poll2); err != nil {
		t.Fatalf("decode re-poll: %v", err)
	}
	if len(poll2.Events) != 0 {
		t.Fatalf("expected empty re-poll got %d events", len(poll2.Events))
	}
}

func jsonNumber(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestWebhookRejectsMalformedJSON(t *testing.T) {
	ts := newTestServer(t)

	res, body := postJSON(t, ts.URL+"/webhook/alert", []byte("{broken"))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", res.StatusCode)
	}
	if body["status"] != "error" || body["message"] == "" {
		t.Fatalf("bad error body: %v", body)
	}
}

func TestWebhookVendorRouteSetsSource(t *testing.T) {
	ts := newTestServer(t)

	if res, _ := postJSON(t, ts.URL+"/webhook/othervendor/alert", []byte(`{"customerId":"7"}`)); res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 got %d", res.StatusCode)
	}

	httpRes, err := http.Get(ts.URL + "/api/events?since=0")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	defer httpRes.Body.Close()

	var poll relay.PollResult
	if err := json.NewDecoder(httpRes.Body).Decode(&poll); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(poll.Events) != 1 || poll.Events[0].Source != "othervendor" {
		t.Fatalf("vendor source not applied: %+v", poll.Events)
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	postJSON(t, ts.URL+"/webhook/alert", []byte(`{"customerId":"1"}`))
	postJSON(t, ts.URL+"/webhook/alert", []byte(`{"customerId":"2"}`))

	res, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	defer res.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("bad status: %v", body)
	}
	if body["eventId"].(float64) != 2 || body["storedEvents"].(float64) != 2 {
		t.Fatalf("bad counters: %v", body)
	}
	if body["connectedClients"].(float64) != 0 {
		t.Fatalf("expected no push clients: %v", body)
	}
}

func TestPollRejectsInvalidCursor(t *testing.T) {
	ts := newTestServer(t)

	res, err := http.Get(ts.URL + "/api/events?since=nope")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", res.StatusCode)
	}
}
