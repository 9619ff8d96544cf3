package patterns

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/faultlinehq/faultline/internal/models"
)

// Miner aggregates recurring log signatures across finished reports. A
// signature that keeps showing up across incidents usually points at a
// chronic failure mode rather than a one-off.
type Miner struct {
	logger *slog.Logger
}

// NewMiner constructs a Miner.
func NewMiner(logger *slog.Logger) *Miner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Miner{logger: logger}
}

// Mine groups log-signature candidates from the supplied reports by
// fingerprint and returns the aggregates ordered by occurrence count. The
// optional service filter keeps only patterns seen on that service.
func (m *Miner) Mine(reports []models.Report, service string) []models.SignaturePattern {
	if len(reports) == 0 {
		return nil
	}

	aggregates := make(map[string]*signatureAggregate)
	for _, report := range reports {
		for _, candidate := range report.Candidates {
			if candidate.Kind != models.CandidateLogs {
				continue
			}
			fingerprint, _ := candidate.Evidence["fingerprint"].(string)
			if fingerprint == "" {
				continue
			}

			agg, ok := aggregates[fingerprint]
			if !ok {
				agg = &signatureAggregate{title: candidate.Title}
				aggregates[fingerprint] = agg
			}
			agg.occurrences++
			agg.scoreSum += candidate.Score
			if svc := report.Scope.Service; svc != "" {
				agg.services = appendUnique(agg.services, svc)
			}
			if report.Meta.GeneratedAt.After(agg.lastSeen) {
				agg.lastSeen = report.Meta.GeneratedAt
			}
		}
	}

	patterns := make([]models.SignaturePattern, 0, len(aggregates))
	for fingerprint, agg := range aggregates {
		if service != "" && !containsFold(agg.services, service) {
			continue
		}
		sort.Strings(agg.services)
		patterns = append(patterns, models.SignaturePattern{
			Fingerprint: fingerprint,
			Title:       agg.title,
			Occurrences: agg.occurrences,
			AvgScore:    agg.scoreSum / float64(agg.occurrences),
			Services:    agg.services,
			LastSeen:    agg.lastSeen,
		})
	}

	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Occurrences != patterns[j].Occurrences {
			return patterns[i].Occurrences > patterns[j].Occurrences
		}
		if patterns[i].AvgScore != patterns[j].AvgScore {
			return patterns[i].AvgScore > patterns[j].AvgScore
		}
		return patterns[i].Fingerprint < patterns[j].Fingerprint
	})

	m.logger.Debug("patterns mined",
		slog.Int("reports", len(reports)),
		slog.Int("patterns", len(patterns)))

	return patterns
}

type signatureAggregate struct {
	title       string
	occurrences int
	scoreSum    float64
	services    []string
	lastSeen    time.Time
}

func appendUnique(items []string, value string) []string {
	for _, existing := range items {
		if existing == value {
			return items
		}
	}
	return append(items, value)
}

func containsFold(items []string, value string) bool {
	for _, existing := range items {
		if strings.EqualFold(existing, value) {
			return true
		}
	}
	return false
}
