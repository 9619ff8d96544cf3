package models

import (
	"errors"
	"fmt"
)

// CandidateKind names the evidence source a candidate was derived from.
type CandidateKind string

const (
	CandidateLogs           CandidateKind = "logs"
	CandidateEndpoint       CandidateKind = "endpoint"
	CandidateDependency     CandidateKind = "dependency"
	CandidateChange         CandidateKind = "change"
	CandidateInfrastructure CandidateKind = "infrastructure"
)

// ErrCandidateScore is returned when a candidate score falls outside [0, 1].
var ErrCandidateScore = errors.New("candidate score out of range")

// Candidate is a scored root-cause hypothesis backed by evidence rows.
type Candidate struct {
	Kind     CandidateKind  `json:"kind"`
	Title    string         `json:"title"`
	Score    float64        `json:"score"`
	Evidence map[string]any `json:"evidence"`
}

// NewCandidate validates the score range; scores are comparable across
// evidence sources and must stay within [0, 1].
func NewCandidate(kind CandidateKind, title string, score float64, evidence map[string]any) (Candidate, error) {
	if score < 0 || score > 1 {
		return Candidate{}, fmt.Errorf("%w: %v", ErrCandidateScore, score)
	}
	return Candidate{Kind: kind, Title: title, Score: score, Evidence: evidence}, nil
}
