package analysis

import (
	"sort"
	"time"

	"github.com/faultlinehq/faultline/internal/models"
)

// DefaultCandidateLimit bounds the merged candidate list in a report.
const DefaultCandidateLimit = 20

const logCandidateTitleCap = 80

// ClusterCandidates lifts ranked log clusters into candidates, reusing each
// cluster's anomaly score rather than recomputing it.
func ClusterCandidates(clusters []models.LogCluster) []models.Candidate {
	candidates := make([]models.Candidate, 0, len(clusters))
	for _, cluster := range clusters {
		title := cluster.Template
		if title == "" {
			title = cluster.Fingerprint
		}
		if len(title) > logCandidateTitleCap {
			title = title[:logCandidateTitleCap]
		}

		candidate, err := models.NewCandidate(
			models.CandidateLogs,
			"Log signature: "+title,
			clamp01(cluster.AnomalyScore),
			map[string]any{
				"fingerprint":    cluster.Fingerprint,
				"template":       cluster.Template,
				"count":          cluster.CountIncident,
				"baseline_count": cluster.CountBaseline,
				"growth_ratio":   models.JSONFloat(cluster.GrowthRatio()),
				"is_new_pattern": cluster.IsNewPattern(),
				"first_seen":     cluster.FirstSeen.UTC().Format(time.RFC3339),
				"sample":         cluster.Sample,
			},
		)
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate)
	}
	return candidates
}

// MergeCandidates concatenates candidate groups from different evidence
// sources, orders them by score, and truncates to limit. Candidates are
// never deduplicated across sources: convergent evidence should be visible
// as separate entries.
func MergeCandidates(limit int, groups ...[]models.Candidate) []models.Candidate {
	if limit <= 0 {
		limit = DefaultCandidateLimit
	}

	total := 0
	for _, group := range groups {
		total += len(group)
	}
	merged := make([]models.Candidate, 0, total)
	for _, group := range groups {
		merged = append(merged, group...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].Title < merged[j].Title
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
