package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"casewatch/internal/apperr"
	"casewatch/internal/models"
	"casewatch/internal/testutil"
)

func testWebhook(t *testing.T, hits *atomic.Int32, bodies chan<- string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		raw, _ := io.ReadAll(r.Body)
		if bodies != nil {
			bodies <- string(raw)
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNotify_ApprovedPrimaryOnly(t *testing.T) {
	var primaryHits, rejectHits atomic.Int32
	bodies := make(chan string, 1)
	primary := testWebhook(t, &primaryHits, bodies)
	reject := testWebhook(t, &rejectHits, nil)

	d := NewDispatcher(Options{
		Enabled:    true,
		PrimaryURL: primary.URL,
		RejectURL:  reject.URL,
		Timeout:    time.Second,
	}, testutil.Logger())

	res, err := d.Notify(context.Background(), "12345678",
		models.Verdict{Decision: models.DecisionApproved, Reason: "一致"}, "raw")
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if !res.Primary || res.Rejection {
		t.Errorf("result = %+v, want primary only", res)
	}
	if primaryHits.Load() != 1 || rejectHits.Load() != 0 {
		t.Errorf("hits primary=%d reject=%d", primaryHits.Load(), rejectHits.Load())
	}

	body := <-bodies
	var msg message
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		t.Fatalf("webhook body: %v", err)
	}
	if msg.Type != "message" || len(msg.Attachments) != 1 {
		t.Fatalf("envelope = %+v", msg)
	}
	if msg.Attachments[0].Content.Version != "1.4" {
		t.Errorf("card version = %q", msg.Attachments[0].Content.Version)
	}
	if !strings.Contains(body, "チケット承認") {
		t.Error("approved card text missing")
	}
	if !strings.Contains(body, "12345678") {
		t.Error("case id missing from card")
	}
}

func TestNotify_RejectedBothWebhooks(t *testing.T) {
	var primaryHits, rejectHits atomic.Int32
	bodies := make(chan string, 2)
	primary := testWebhook(t, &primaryHits, bodies)
	reject := testWebhook(t, &rejectHits, bodies)

	d := NewDispatcher(Options{
		Enabled:    true,
		PrimaryURL: primary.URL,
		RejectURL:  reject.URL,
		Timeout:    time.Second,
	}, testutil.Logger())

	res, err := d.Notify(context.Background(), "87654321",
		models.Verdict{Decision: models.DecisionRejected, Reason: "別案件の話題"}, "raw")
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if !res.Primary || !res.Rejection {
		t.Errorf("result = %+v, want primary and rejection", res)
	}
	if primaryHits.Load() != 1 || rejectHits.Load() != 1 {
		t.Errorf("hits primary=%d reject=%d", primaryHits.Load(), rejectHits.Load())
	}

	body := <-bodies
	if !strings.Contains(body, "受付番号不一致の可能性") {
		t.Error("rejection card headline missing")
	}
	if !strings.Contains(body, "理由：別案件の話題") {
		t.Error("reason missing from card")
	}
	var msg message
	json.Unmarshal([]byte(body), &msg)
	if msg.Summary != "Case ID 87654321 caseid mismatch" {
		t.Errorf("summary = %q", msg.Summary)
	}
}

func TestNotify_RejectedWithoutRejectURL(t *testing.T) {
	var primaryHits atomic.Int32
	primary := testWebhook(t, &primaryHits, nil)

	d := NewDispatcher(Options{
		Enabled:    true,
		PrimaryURL: primary.URL,
		Timeout:    time.Second,
	}, testutil.Logger())

	res, err := d.Notify(context.Background(), "00000001",
		models.Verdict{Decision: models.DecisionRejected}, "raw")
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if !res.Primary || res.Rejection {
		t.Errorf("result = %+v, want primary only", res)
	}
}

func TestNotify_Disabled(t *testing.T) {
	var hits atomic.Int32
	primary := testWebhook(t, &hits, nil)

	d := NewDispatcher(Options{Enabled: false, PrimaryURL: primary.URL}, testutil.Logger())
	res, err := d.Notify(context.Background(), "00000001",
		models.Verdict{Decision: models.DecisionApproved}, "raw")
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if res.Primary || hits.Load() != 0 {
		t.Errorf("disabled dispatcher delivered: %+v, hits=%d", res, hits.Load())
	}
}

func TestNotify_EmptyPrimaryURL(t *testing.T) {
	d := NewDispatcher(Options{Enabled: true}, testutil.Logger())
	res, err := d.Notify(context.Background(), "00000001",
		models.Verdict{Decision: models.DecisionApproved}, "raw")
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if res.Primary {
		t.Error("delivered with no primary URL configured")
	}
}

func TestNotify_PrimaryFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	d := NewDispatcher(Options{Enabled: true, PrimaryURL: srv.URL, Timeout: time.Second}, testutil.Logger())
	_, err := d.Notify(context.Background(), "00000001",
		models.Verdict{Decision: models.DecisionApproved}, "raw")
	var se *apperr.StageError
	if !errors.As(err, &se) {
		t.Fatalf("error %v is not a StageError", err)
	}
	if se.Stage != models.StageNotify || !se.Transient {
		t.Errorf("stage=%q transient=%v, want notify/transient", se.Stage, se.Transient)
	}
}

func TestBuildCard_UnknownFallsBackToRaw(t *testing.T) {
	body := buildCard("00000001", "http://localhost/",
		models.Verdict{Decision: models.DecisionUnknown}, "raw model text", time.Now())
	if len(body) != 1 {
		t.Fatalf("len(body) = %d, want 1", len(body))
	}
	raw, _ := json.Marshal(body)
	if !strings.Contains(string(raw), "判定不明") {
		t.Error("unknown card headline missing")
	}
	if !strings.Contains(string(raw), "raw model text") {
		t.Error("raw text missing from unknown card")
	}
}
