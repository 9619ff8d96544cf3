package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/faultlinehq/faultline/internal/analysis"
	"github.com/faultlinehq/faultline/internal/models"
)

const (
	recConfirmRegression = "Confirm the regression start time using the incident window and the symptom peak timestamp."
	recInspectSignatures = "Inspect the top log signatures and correlate with traces to identify the failing component."
	recReviewChanges     = "Review deploy and config events near the incident start for temporal alignment."
	recPivotEndpoints    = "Pivot to the slowest endpoints during the incident window and compare latency percentiles against baseline."
	recFallback          = "Correlate the incident window with recent changes and expand the log query scope."
)

// BuiltinRecommendations walks the fixed rule table over the assembled
// evidence. Rules fire in a stable order and the result carries no
// duplicates; when nothing fires a single generic fallback is returned.
func BuiltinRecommendations(symptoms []models.Symptom, candidates []models.Candidate, events []models.EventItem) []string {
	recs := make([]string, 0, 4)

	for _, symptom := range symptoms {
		if symptom.PercentChange != nil && float64(*symptom.PercentChange) > 20 {
			recs = appendUnique(recs, recConfirmRegression)
			break
		}
	}
	if hasKind(candidates, models.CandidateLogs) {
		recs = appendUnique(recs, recInspectSignatures)
	}
	if analysis.HasChangeEvents(events) {
		recs = appendUnique(recs, recReviewChanges)
		if rec, ok := precedingChangeRec(symptoms, events); ok {
			recs = appendUnique(recs, rec)
		}
	}
	if deps := topDependencies(candidates, 3); len(deps) > 0 {
		recs = appendUnique(recs, "Investigate downstream dependencies first: "+strings.Join(deps, ", ")+".")
	}
	if hasKind(candidates, models.CandidateEndpoint) {
		recs = appendUnique(recs, recPivotEndpoints)
	}

	if len(recs) == 0 {
		recs = append(recs, recFallback)
	}
	return recs
}

// precedingChangeRec points at the first change event when it happened
// before the symptom peak, the strongest temporal hint the table produces.
func precedingChangeRec(symptoms []models.Symptom, events []models.EventItem) (string, bool) {
	change, ok := analysis.FirstChangeEvent(events)
	if !ok {
		return "", false
	}
	for _, symptom := range symptoms {
		if symptom.PeakTs != nil && change.DateHappened.Before(*symptom.PeakTs) {
			return fmt.Sprintf("Change event %q precedes the symptom peak; review it first.", change.Title), true
		}
	}
	return "", false
}

func hasKind(candidates []models.Candidate, kind models.CandidateKind) bool {
	for _, candidate := range candidates {
		if candidate.Kind == kind {
			return true
		}
	}
	return false
}

// topDependencies lists the first n distinct downstream systems named by
// dependency candidates, in score order.
func topDependencies(candidates []models.Candidate, n int) []string {
	deps := make([]string, 0, n)
	seen := make(map[string]struct{}, n)
	for _, candidate := range candidates {
		if candidate.Kind != models.CandidateDependency {
			continue
		}
		name, _ := candidate.Evidence["dependency"].(string)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		deps = append(deps, name)
		seen[name] = struct{}{}
		if len(deps) == n {
			break
		}
	}
	return deps
}

// RuleEngine extends the builtin table with operator-authored rules loaded
// from a YAML pack.
type RuleEngine struct {
	rules  []Rule
	logger *slog.Logger
}

// Rule represents a single recommendation rule.
type Rule struct {
	ID              string    `yaml:"id"`
	Match           RuleMatch `yaml:"match"`
	Recommendations []string  `yaml:"recommendations"`
}

// RuleMatch defines optional attributes for rule matching. Unset attributes
// match everything.
type RuleMatch struct {
	Service       string   `yaml:"service"`
	SymptomType   string   `yaml:"symptom_type"`
	Severity      string   `yaml:"severity"`
	CandidateKind string   `yaml:"candidate_kind"`
	TitleContains []string `yaml:"title_contains"`
}

// RuleConfigFile is the YAML root structure.
type RuleConfigFile struct {
	Rules []Rule `yaml:"rules"`
}

// NewRuleEngine loads rules from the provided path. An empty path or a
// missing file returns a nil engine, which recommends nothing.
func NewRuleEngine(path string, logger *slog.Logger) (*RuleEngine, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var cfg RuleConfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RuleEngine{rules: cfg.Rules, logger: logger}, nil
}

// Recommend evaluates every rule against the report evidence.
func (e *RuleEngine) Recommend(scope models.Scope, symptoms []models.Symptom, candidates []models.Candidate) []string {
	if e == nil {
		return nil
	}

	matched := make([]string, 0)
	for _, rule := range e.rules {
		if rule.Match.Service != "" && !strings.EqualFold(rule.Match.Service, scope.Service) {
			continue
		}
		if rule.Match.SymptomType != "" && !symptomsHaveType(rule.Match.SymptomType, symptoms) {
			continue
		}
		if rule.Match.Severity != "" && !symptomsHaveSeverity(rule.Match.Severity, symptoms) {
			continue
		}
		if rule.Match.CandidateKind != "" && !hasKind(candidates, models.CandidateKind(strings.ToLower(rule.Match.CandidateKind))) {
			continue
		}
		if len(rule.Match.TitleContains) > 0 && !titlesContain(rule.Match.TitleContains, candidates) {
			continue
		}
		matched = appendUnique(matched, rule.Recommendations...)
	}
	return matched
}

func symptomsHaveType(symptomType string, symptoms []models.Symptom) bool {
	for _, symptom := range symptoms {
		if strings.EqualFold(symptomType, string(symptom.Type)) {
			return true
		}
	}
	return false
}

func symptomsHaveSeverity(severity string, symptoms []models.Symptom) bool {
	for _, symptom := range symptoms {
		if strings.EqualFold(severity, string(symptom.Severity())) {
			return true
		}
	}
	return false
}

func titlesContain(keywords []string, candidates []models.Candidate) bool {
	for _, candidate := range candidates {
		title := strings.ToLower(candidate.Title)
		for _, kw := range keywords {
			if kw != "" && strings.Contains(title, strings.ToLower(kw)) {
				return true
			}
		}
	}
	return false
}

func appendUnique(existing []string, additions ...string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, rec := range existing {
		seen[rec] = struct{}{}
	}
	for _, item := range additions {
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		existing = append(existing, item)
		seen[item] = struct{}{}
	}
	return existing
}
