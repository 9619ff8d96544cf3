package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/faultlinehq/faultline/internal/models"
)

func pctSymptom(pct float64) models.Symptom {
	f := models.JSONFloat(pct)
	return models.Symptom{Type: models.SymptomLatency, QueryOrSignature: "p95:trace.api.request.duration{*}", PercentChange: &f}
}

func mustCandidate(t *testing.T, kind models.CandidateKind, title string, score float64, evidence map[string]any) models.Candidate {
	t.Helper()
	c, err := models.NewCandidate(kind, title, score, evidence)
	if err != nil {
		t.Fatalf("NewCandidate: %v", err)
	}
	return c
}

func TestBuiltinRecommendationsTable(t *testing.T) {
	symptoms := []models.Symptom{pctSymptom(150)}
	candidates := []models.Candidate{
		mustCandidate(t, models.CandidateLogs, "Log signature: timeout", 0.8, nil),
		mustCandidate(t, models.CandidateDependency, "Downstream suspect: postgres", 0.6, map[string]any{"dependency": "postgres"}),
		mustCandidate(t, models.CandidateDependency, "Downstream suspect: redis", 0.5, map[string]any{"dependency": "redis"}),
		mustCandidate(t, models.CandidateDependency, "Downstream suspect: postgres", 0.4, map[string]any{"dependency": "postgres"}),
		mustCandidate(t, models.CandidateEndpoint, "Endpoint regression: GET /users", 0.3, nil),
	}
	events := []models.EventItem{{
		ID:           1,
		Title:        "Rollout payments v9",
		DateHappened: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		Tags:         []string{"rollout"},
	}}

	recs := BuiltinRecommendations(symptoms, candidates, events)

	want := []string{
		recConfirmRegression,
		recInspectSignatures,
		recReviewChanges,
		"Investigate downstream dependencies first: postgres, redis.",
		recPivotEndpoints,
	}
	if len(recs) != len(want) {
		t.Fatalf("got %d recommendations, want %d: %v", len(recs), len(want), recs)
	}
	for i, rec := range want {
		if recs[i] != rec {
			t.Fatalf("recs[%d] = %q, want %q", i, recs[i], rec)
		}
	}
}

func TestBuiltinRecommendationsFallback(t *testing.T) {
	recs := BuiltinRecommendations(nil, nil, nil)
	if len(recs) != 1 || recs[0] != recFallback {
		t.Fatalf("recs = %v", recs)
	}

	// A below-threshold change alone should also fall through.
	recs = BuiltinRecommendations([]models.Symptom{pctSymptom(5)}, nil, nil)
	if len(recs) != 1 || recs[0] != recFallback {
		t.Fatalf("recs = %v", recs)
	}
}

func TestBuiltinRecommendationsChangePrecedence(t *testing.T) {
	peak := time.Date(2026, 3, 14, 10, 5, 0, 0, time.UTC)
	symptom := pctSymptom(40)
	symptom.PeakTs = &peak

	events := []models.EventItem{{
		ID:           2,
		Title:        "Deploy api v3",
		DateHappened: peak.Add(-4 * time.Minute),
		Tags:         []string{"deploy"},
	}}

	recs := BuiltinRecommendations([]models.Symptom{symptom}, nil, events)
	if !contains(recs, `Change event "Deploy api v3" precedes the symptom peak; review it first.`) {
		t.Fatalf("missing precedence recommendation: %v", recs)
	}

	// An event after the peak earns the generic change review only.
	events[0].DateHappened = peak.Add(time.Minute)
	recs = BuiltinRecommendations([]models.Symptom{symptom}, nil, events)
	if !contains(recs, recReviewChanges) {
		t.Fatalf("missing change recommendation: %v", recs)
	}
	for _, rec := range recs {
		if rec != recReviewChanges && rec != recConfirmRegression {
			t.Fatalf("unexpected recommendation %q", rec)
		}
	}
}

func TestNewRuleEngineMissingFile(t *testing.T) {
	engine, err := NewRuleEngine("", nil)
	if err != nil || engine != nil {
		t.Fatalf("empty path: engine=%v err=%v", engine, err)
	}

	engine, err = NewRuleEngine(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	if err != nil || engine != nil {
		t.Fatalf("missing file: engine=%v err=%v", engine, err)
	}
}

func TestNewRuleEngineInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte("rules: ["), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewRuleEngine(path, nil); err == nil {
		t.Fatalf("expected YAML error")
	}
}

func TestRuleEngineRecommend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	rules := `rules:
  - id: pg-timeouts
    match:
      candidate_kind: dependency
      title_contains: ["postgres"]
    recommendations:
      - "Check pgbouncer saturation and connection pool limits."
  - id: other-service
    match:
      service: billing
    recommendations:
      - "Page the billing on-call."
  - id: critical-latency
    match:
      symptom_type: latency
      severity: critical
    recommendations:
      - "Roll back the latest deploy for the service."
`
	if err := os.WriteFile(path, []byte(rules), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	engine, err := NewRuleEngine(path, nil)
	if err != nil {
		t.Fatalf("NewRuleEngine: %v", err)
	}
	if engine == nil {
		t.Fatalf("expected a rule engine")
	}

	scope := models.Scope{Service: "checkout"}
	symptoms := []models.Symptom{pctSymptom(150)}
	candidates := []models.Candidate{
		mustCandidate(t, models.CandidateDependency, "Downstream suspect: postgres", 0.7, map[string]any{"dependency": "postgres"}),
	}

	recs := engine.Recommend(scope, symptoms, candidates)
	if !contains(recs, "Check pgbouncer saturation and connection pool limits.") {
		t.Fatalf("dependency rule did not fire: %v", recs)
	}
	if contains(recs, "Page the billing on-call.") {
		t.Fatalf("service rule fired for the wrong service: %v", recs)
	}
	if !contains(recs, "Roll back the latest deploy for the service.") {
		t.Fatalf("severity rule did not fire: %v", recs)
	}

	var nilEngine *RuleEngine
	if out := nilEngine.Recommend(scope, symptoms, candidates); out != nil {
		t.Fatalf("nil engine should recommend nothing, got %v", out)
	}
}
