package models

import (
	"errors"
	"testing"
)

func TestNewCandidateValidatesScore(t *testing.T) {
	for _, score := range []float64{-0.01, 1.01} {
		if _, err := NewCandidate(CandidateLogs, "bad", score, nil); !errors.Is(err, ErrCandidateScore) {
			t.Fatalf("score %v: err = %v", score, err)
		}
	}

	for _, score := range []float64{0, 0.5, 1} {
		candidate, err := NewCandidate(CandidateEndpoint, "ok", score, map[string]any{"mode": "latency"})
		if err != nil {
			t.Fatalf("score %v: %v", score, err)
		}
		if candidate.Kind != CandidateEndpoint || candidate.Score != score {
			t.Fatalf("candidate = %+v", candidate)
		}
	}
}
