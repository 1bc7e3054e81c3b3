package journal

import (
	"os"
	"testing"

	"casewatch/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "casewatch-journal-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRecordAndHistory(t *testing.T) {
	db := testDB(t)

	steps := []Transition{
		{CaseID: "12345678", Fingerprint: "fp1", State: models.StateSeen},
		{CaseID: "12345678", Fingerprint: "fp1", State: models.StateExtracted},
		{CaseID: "12345678", Fingerprint: "fp1", State: models.StateNotified, Decision: models.DecisionApproved},
	}
	for _, tr := range steps {
		if err := db.Record(tr); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	hist, err := db.History("12345678")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 3 {
		t.Fatalf("len(hist) = %d, want 3", len(hist))
	}
	if hist[0].State != models.StateSeen || hist[2].State != models.StateNotified {
		t.Errorf("history order wrong: %v", hist)
	}
	if hist[2].Decision != models.DecisionApproved {
		t.Errorf("decision = %q", hist[2].Decision)
	}
	if hist[0].CreatedAt.IsZero() {
		t.Error("created_at not set")
	}
}

func TestHistory_UnknownCase(t *testing.T) {
	db := testDB(t)
	hist, err := db.History("00000000")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 0 {
		t.Errorf("hist = %v, want empty", hist)
	}
}

func TestLatest_OnePerCase(t *testing.T) {
	db := testDB(t)

	db.Record(Transition{CaseID: "11111111", Fingerprint: "a", State: models.StateSeen})
	db.Record(Transition{CaseID: "11111111", Fingerprint: "a", State: models.StateFailed, Stage: models.StageJudge, Reason: "timeout"})
	db.Record(Transition{CaseID: "22222222", Fingerprint: "b", State: models.StateNotified, Decision: models.DecisionRejected})

	latest, err := db.Latest()
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("len(latest) = %d, want 2", len(latest))
	}
	if latest[0].CaseID != "11111111" || latest[0].State != models.StateFailed {
		t.Errorf("latest[0] = %+v", latest[0])
	}
	if latest[0].Stage != models.StageJudge || latest[0].Reason != "timeout" {
		t.Errorf("latest[0] stage/reason = %q/%q", latest[0].Stage, latest[0].Reason)
	}
	if latest[1].CaseID != "22222222" || latest[1].Decision != models.DecisionRejected {
		t.Errorf("latest[1] = %+v", latest[1])
	}
}

func TestNotifiedFingerprints(t *testing.T) {
	db := testDB(t)

	// Notified case: fingerprint should be recovered.
	db.Record(Transition{CaseID: "11111111", Fingerprint: "fp-old", State: models.StateNotified})
	db.Record(Transition{CaseID: "11111111", Fingerprint: "fp-new", State: models.StateNotified})
	// Skipped case counts as handled too.
	db.Record(Transition{CaseID: "22222222", Fingerprint: "fp-skip", State: models.StateSkipped})
	// Failed case must not be treated as handled.
	db.Record(Transition{CaseID: "33333333", Fingerprint: "fp-fail", State: models.StateFailed})

	done, err := db.NotifiedFingerprints()
	if err != nil {
		t.Fatalf("NotifiedFingerprints: %v", err)
	}
	if done["11111111"] != "fp-new" {
		t.Errorf("11111111 = %q, want fp-new", done["11111111"])
	}
	if done["22222222"] != "fp-skip" {
		t.Errorf("22222222 = %q, want fp-skip", done["22222222"])
	}
	if _, ok := done["33333333"]; ok {
		t.Error("failed case leaked into handled fingerprints")
	}
}
