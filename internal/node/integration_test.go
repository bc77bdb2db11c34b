package node_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aquatrace/aquatrace/internal/audit"
	"github.com/aquatrace/aquatrace/internal/node/handler"
	"github.com/aquatrace/aquatrace/internal/waterledger"
)

const (
	testOwner       = "metro-water-authority"
	testVerifier    = "city-water-lab"
	testDistributor = "aquaflow-logistics"
)

// captureSink records every published ledger event for assertions.
type captureSink struct {
	mu     sync.Mutex
	events []waterledger.Event
}

func (s *captureSink) Publish(_ context.Context, ev waterledger.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *captureSink) types() []waterledger.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]waterledger.EventType, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Type
	}
	return out
}

// setupNode assembles the full node over the in-memory store: ledger with
// genesis owner, event capture, integrity auditor, and every ledger handler
// mounted the way cmd/aquad mounts them. Caller auth runs in open mode, so
// requests identify themselves with the X-Aqua-Caller header.
func setupNode(t *testing.T) (*httptest.Server, *audit.Auditor, *captureSink) {
	t.Helper()

	logger := zap.NewNop()
	store := waterledger.NewMemoryStore()

	ledger := waterledger.New(store, logger)
	if err := ledger.Init(context.Background(), testOwner); err != nil {
		t.Fatalf("init ledger: %v", err)
	}
	sink := &captureSink{}
	ledger.SetSink(sink)

	auditor := audit.New(store, audit.Config{}, logger)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	v1 := router.Group("/api/v1")
	handler.NewQualityHandler(ledger, nil, logger).Register(v1)
	handler.NewDistributionHandler(ledger, nil, logger).Register(v1)
	handler.NewAccessHandler(ledger, nil, logger).Register(v1)
	handler.NewLedgerHandler(ledger, auditor, logger).Register(v1)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, auditor, sink
}

func doJSON(t *testing.T, srv *httptest.Server, method, path, caller, body string) (*http.Response, map[string]any) {
	t.Helper()

	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if caller != "" {
		req.Header.Set("X-Aqua-Caller", caller)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var result map[string]any
	json.NewDecoder(resp.Body).Decode(&result)
	return resp, result
}

func TestNodeLifecycle(t *testing.T) {
	srv, _, _ := setupNode(t)

	// Fresh ledger: owner set, both counts zero.
	resp, body := doJSON(t, srv, http.MethodGet, "/api/v1/ledger/overview", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("overview: expected 200, got %d", resp.StatusCode)
	}
	if body["owner"] != testOwner {
		t.Fatalf("expected owner %q, got %v", testOwner, body["owner"])
	}
	if body["quality_count"].(float64) != 0 || body["distribution_count"].(float64) != 0 {
		t.Fatalf("expected empty ledger, got %v", body)
	}

	// Owner hands out roles; a non-owner may not.
	resp, _ = doJSON(t, srv, http.MethodPost, "/api/v1/access/verifiers", testOwner,
		fmt.Sprintf(`{"account":%q}`, testVerifier))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("grant verifier: expected 200, got %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, srv, http.MethodPost, "/api/v1/access/distributors", testOwner,
		fmt.Sprintf(`{"account":%q}`, testDistributor))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("grant distributor: expected 200, got %d", resp.StatusCode)
	}
	resp, body = doJSON(t, srv, http.MethodPost, "/api/v1/access/verifiers", testVerifier,
		`{"account":"accomplice"}`)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("grant by non-owner: expected 403, got %d: %v", resp.StatusCode, body)
	}

	// Safe measurement takes ID 1.
	resp, body = doJSON(t, srv, http.MethodPost, "/api/v1/quality", testVerifier,
		`{"location":"Well-A","ph":700,"tds":500,"turbidity":2,"temperature":250}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("record quality: expected 201, got %d: %v", resp.StatusCode, body)
	}
	if body["quality_id"].(float64) != 1 || body["is_safe"] != true {
		t.Fatalf("expected quality_id 1 safe, got %v", body)
	}

	// A rejected measurement consumes no ID; the next success takes ID 2.
	resp, _ = doJSON(t, srv, http.MethodPost, "/api/v1/quality", testVerifier,
		`{"location":"Well-A","ph":1401,"tds":500,"turbidity":2,"temperature":250}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("out-of-range ph: expected 400, got %d", resp.StatusCode)
	}
	resp, body = doJSON(t, srv, http.MethodPost, "/api/v1/quality", testVerifier,
		`{"location":"Well-A","ph":300,"tds":500,"turbidity":2,"temperature":250}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("record unsafe quality: expected 201, got %d: %v", resp.StatusCode, body)
	}
	if body["quality_id"].(float64) != 2 || body["is_safe"] != false {
		t.Fatalf("expected quality_id 2 unsafe, got %v", body)
	}

	// History keeps insertion order; latest tracks the newest record only.
	resp, body = doJSON(t, srv, http.MethodGet, "/api/v1/quality/history?location=Well-A", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history: expected 200, got %d", resp.StatusCode)
	}
	ids := body["quality_ids"].([]any)
	if len(ids) != 2 || ids[0].(float64) != 1 || ids[1].(float64) != 2 {
		t.Fatalf("expected history [1 2], got %v", ids)
	}
	resp, body = doJSON(t, srv, http.MethodGet, "/api/v1/quality/latest?location=Well-A", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("latest: expected 200, got %d", resp.StatusCode)
	}
	if body["known"] != true || body["is_safe"] != false || body["quality_id"].(float64) != 2 {
		t.Fatalf("expected latest unsafe record 2, got %v", body)
	}

	// Distribution: safe ref accepted, unsafe ref 422, dangling ref 404.
	resp, body = doJSON(t, srv, http.MethodPost, "/api/v1/distributions", testDistributor,
		`{"source":"Well-A","destination":"district-4","quantity":50000,"quality_ref":1}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("track distribution: expected 201, got %d: %v", resp.StatusCode, body)
	}
	if body["distribution_id"].(float64) != 1 {
		t.Fatalf("expected distribution_id 1, got %v", body)
	}
	resp, _ = doJSON(t, srv, http.MethodPost, "/api/v1/distributions", testDistributor,
		`{"source":"Well-A","destination":"district-4","quantity":50000,"quality_ref":2}`)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("unsafe ref: expected 422, got %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, srv, http.MethodPost, "/api/v1/distributions", testDistributor,
		`{"source":"Well-A","destination":"district-4","quantity":50000,"quality_ref":999}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("dangling ref: expected 404, got %d", resp.StatusCode)
	}

	// Confirmation: recorder only, exactly once, then 409 for everyone.
	resp, _ = doJSON(t, srv, http.MethodPost, "/api/v1/distributions/1/confirm", testVerifier, "")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("confirm by non-recorder: expected 403, got %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, srv, http.MethodPost, "/api/v1/distributions/1/confirm", testDistributor, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("confirm: expected 200, got %d", resp.StatusCode)
	}
	resp, body = doJSON(t, srv, http.MethodGet, "/api/v1/distributions/1/status", "", "")
	if resp.StatusCode != http.StatusOK || body["delivered"] != true {
		t.Fatalf("expected delivered=true, got %d %v", resp.StatusCode, body)
	}
	resp, _ = doJSON(t, srv, http.MethodPost, "/api/v1/distributions/1/confirm", testOwner, "")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second confirm: expected 409, got %d", resp.StatusCode)
	}

	// Failed tracks consumed no IDs: the next success takes ID 2.
	resp, body = doJSON(t, srv, http.MethodPost, "/api/v1/distributions", testDistributor,
		`{"source":"Well-A","destination":"eastgate-school","quantity":2500,"quality_ref":1}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("track second distribution: expected 201, got %d", resp.StatusCode)
	}
	if body["distribution_id"].(float64) != 2 {
		t.Fatalf("expected distribution_id 2, got %v", body)
	}

	resp, body = doJSON(t, srv, http.MethodGet, "/api/v1/ledger/overview", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("final overview: expected 200, got %d", resp.StatusCode)
	}
	if body["quality_count"].(float64) != 2 || body["distribution_count"].(float64) != 2 {
		t.Fatalf("expected counts 2/2, got %v", body)
	}
}

func TestLedgerEvents_postCommitOnly(t *testing.T) {
	srv, _, sink := setupNode(t)

	doJSON(t, srv, http.MethodPost, "/api/v1/access/verifiers", testOwner,
		fmt.Sprintf(`{"account":%q}`, testVerifier))
	doJSON(t, srv, http.MethodPost, "/api/v1/access/distributors", testOwner,
		fmt.Sprintf(`{"account":%q}`, testDistributor))
	doJSON(t, srv, http.MethodPost, "/api/v1/quality", testVerifier,
		`{"location":"Well-A","ph":700,"tds":500,"turbidity":2,"temperature":250}`)
	doJSON(t, srv, http.MethodPost, "/api/v1/distributions", testDistributor,
		`{"source":"Well-A","destination":"district-4","quantity":1000,"quality_ref":1}`)
	doJSON(t, srv, http.MethodPost, "/api/v1/distributions/1/confirm", testDistributor, "")

	want := []waterledger.EventType{
		waterledger.EventAccessGranted,
		waterledger.EventAccessGranted,
		waterledger.EventQualityRecorded,
		waterledger.EventDistributionTracked,
		waterledger.EventDeliveryConfirmed,
	}
	got := sink.types()
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	// Failed operations emit nothing.
	resp, _ := doJSON(t, srv, http.MethodPost, "/api/v1/quality", "intruder",
		`{"location":"Well-A","ph":700,"tds":500,"turbidity":2,"temperature":250}`)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	if n := len(sink.types()); n != len(want) {
		t.Errorf("rejected operation emitted an event: %d events, expected %d", n, len(want))
	}
}

func TestIntegrityAudit_fullStack(t *testing.T) {
	srv, auditor, _ := setupNode(t)

	// No pass has run yet.
	resp, body := doJSON(t, srv, http.MethodGet, "/api/v1/ledger/audit", "", "")
	if resp.StatusCode != http.StatusOK || body["audited"] != false {
		t.Fatalf("expected audited=false before first pass, got %d %v", resp.StatusCode, body)
	}

	doJSON(t, srv, http.MethodPost, "/api/v1/access/verifiers", testOwner,
		fmt.Sprintf(`{"account":%q}`, testVerifier))
	doJSON(t, srv, http.MethodPost, "/api/v1/access/distributors", testOwner,
		fmt.Sprintf(`{"account":%q}`, testDistributor))
	doJSON(t, srv, http.MethodPost, "/api/v1/quality", testVerifier,
		`{"location":"Well-A","ph":700,"tds":500,"turbidity":2,"temperature":250}`)
	doJSON(t, srv, http.MethodPost, "/api/v1/quality", testVerifier,
		`{"location":"Well-B","ph":300,"tds":1500,"turbidity":9,"temperature":250}`)
	doJSON(t, srv, http.MethodPost, "/api/v1/distributions", testDistributor,
		`{"source":"Well-A","destination":"district-4","quantity":1000,"quality_ref":1}`)

	if faults := auditor.RunOnce(context.Background()); len(faults) != 0 {
		t.Fatalf("expected clean audit, got %v", faults)
	}

	resp, body = doJSON(t, srv, http.MethodGet, "/api/v1/ledger/audit", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("audit result: expected 200, got %d", resp.StatusCode)
	}
	if body["audited"] != true || body["clean"] != true {
		t.Fatalf("expected clean audit result, got %v", body)
	}
	if faults := body["faults"].([]any); len(faults) != 0 {
		t.Errorf("expected no faults, got %v", faults)
	}
}
