package contextstore

import (
	"time"

	"github.com/google/uuid"

	"github.com/faultlinehq/faultline/internal/models"
)

// IncidentContext aggregates everything learned about one incident while an
// analysis runs. Contexts are deliberately unlocked: exactly one writer owns
// a context at a time and readers only see it through snapshots taken after
// the writer hands it back to the store.
type IncidentContext struct {
	ID        string
	Scope     models.Scope
	Windows   models.Windows
	CreatedAt time.Time
	UpdatedAt time.Time

	symptoms   []models.Symptom
	candidates []models.Candidate
	findings   map[string]any
	report     *models.Report
}

// NewIncidentContext creates a context; an empty id is assigned a UUID.
func NewIncidentContext(id string, scope models.Scope, windows models.Windows) *IncidentContext {
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()
	return &IncidentContext{
		ID:        id,
		Scope:     scope,
		Windows:   windows,
		CreatedAt: now,
		UpdatedAt: now,
		findings:  map[string]any{},
	}
}

// AppendSymptom adds to the append-only symptom list.
func (c *IncidentContext) AppendSymptom(symptom models.Symptom) {
	c.symptoms = append(c.symptoms, symptom)
	c.UpdatedAt = time.Now().UTC()
}

// AddCandidate inserts a candidate and keeps the list ordered by score
// descending, title ascending on ties.
func (c *IncidentContext) AddCandidate(candidate models.Candidate) {
	idx := len(c.candidates)
	for i, existing := range c.candidates {
		if candidate.Score > existing.Score ||
			(candidate.Score == existing.Score && candidate.Title < existing.Title) {
			idx = i
			break
		}
	}
	c.candidates = append(c.candidates, models.Candidate{})
	copy(c.candidates[idx+1:], c.candidates[idx:])
	c.candidates[idx] = candidate
	c.UpdatedAt = time.Now().UTC()
}

// SetFinding records one evidence block under its source key.
func (c *IncidentContext) SetFinding(key string, value any) {
	c.findings[key] = value
	c.UpdatedAt = time.Now().UTC()
}

// SetReport attaches the finished report.
func (c *IncidentContext) SetReport(report models.Report) {
	c.report = &report
	c.UpdatedAt = time.Now().UTC()
}

// Report returns the finished report, if analysis completed.
func (c *IncidentContext) Report() (models.Report, bool) {
	if c.report == nil {
		return models.Report{}, false
	}
	return *c.report, true
}

// Symptoms returns a copy of the symptom list.
func (c *IncidentContext) Symptoms() []models.Symptom {
	return append([]models.Symptom(nil), c.symptoms...)
}

// Candidates returns a copy of the ranked candidate list.
func (c *IncidentContext) Candidates() []models.Candidate {
	return append([]models.Candidate(nil), c.candidates...)
}

// Findings returns a copy of the findings map.
func (c *IncidentContext) Findings() map[string]any {
	out := make(map[string]any, len(c.findings))
	for k, v := range c.findings {
		out[k] = v
	}
	return out
}

// Snapshot renders the context for API consumers.
func (c *IncidentContext) Snapshot() ContextSnapshot {
	snap := ContextSnapshot{
		IncidentID: c.ID,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
		Scope:      c.Scope,
		Windows:    c.Windows,
		Symptoms:   c.Symptoms(),
		Candidates: c.Candidates(),
		Findings:   c.Findings(),
	}
	if c.report != nil {
		snap.ReportID = c.report.Meta.ReportID
	}
	return snap
}

// ContextSnapshot is the read model returned by the incidents API.
type ContextSnapshot struct {
	IncidentID string             `json:"incident_id"`
	ReportID   string             `json:"report_id,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
	Scope      models.Scope       `json:"scope"`
	Windows    models.Windows     `json:"windows"`
	Symptoms   []models.Symptom   `json:"symptoms"`
	Candidates []models.Candidate `json:"candidates"`
	Findings   map[string]any     `json:"findings"`
}
