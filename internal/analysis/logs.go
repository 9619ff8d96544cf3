package analysis

import (
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"

	"github.com/faultlinehq/faultline/internal/models"
	"github.com/faultlinehq/faultline/internal/repo"
)

const (
	normalizedMessageCap = 500
	sampleMessageCap     = 300
	templateMinPrefix    = 20
)

// Masking order matters: UUIDs before bare integers, dotted quads before
// bare integers, quoted literals before both so their contents survive as a
// single placeholder.
var (
	uuidPattern   = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	quotedPattern = regexp.MustCompile(`"[^"]*"|'[^' ]*'`)
	ipPattern     = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	numPattern    = regexp.MustCompile(`\b\d+\b`)
	spacePattern  = regexp.MustCompile(`\s+`)
)

// NormalizeMessage masks variable fragments so log lines differing only in
// identifiers collide on the same shape.
func NormalizeMessage(message string) string {
	masked := uuidPattern.ReplaceAllString(message, "<uuid>")
	masked = quotedPattern.ReplaceAllString(masked, "<str>")
	masked = ipPattern.ReplaceAllString(masked, "<ip>")
	masked = numPattern.ReplaceAllString(masked, "<num>")
	masked = strings.TrimSpace(spacePattern.ReplaceAllString(masked, " "))
	if len(masked) > normalizedMessageCap {
		masked = masked[:normalizedMessageCap]
	}
	return masked
}

// Fingerprint derives the stable grouping key for a record: service,
// error-type attribute, and a short hash of the normalised message.
func Fingerprint(record repo.LogRecord, normalized string) string {
	service := record.Service
	if service == "" {
		service = "unknown"
	}
	errType := record.Attributes["error.type"]
	if errType == "" {
		errType = record.Attributes["error.kind"]
	}
	if errType == "" {
		errType = "generic"
	}
	sum := sha1.Sum([]byte(normalized))
	return service + ":" + errType + ":" + hex.EncodeToString(sum[:])[:12]
}

// ClusterLogs groups records by fingerprint. Each cluster keeps the earliest
// timestamp, one sample record, and a template derived from the members'
// normalised messages. Output is ordered by fingerprint so callers see a
// deterministic layout before ranking.
func ClusterLogs(records []repo.LogRecord) []models.LogCluster {
	if len(records) == 0 {
		return nil
	}

	type group struct {
		cluster  models.LogCluster
		messages []string
	}
	groups := map[string]*group{}
	order := []string{}

	for _, record := range records {
		normalized := NormalizeMessage(record.Message)
		fp := Fingerprint(record, normalized)

		g, ok := groups[fp]
		if !ok {
			message := record.Message
			if len(message) > sampleMessageCap {
				message = message[:sampleMessageCap]
			}
			g = &group{cluster: models.LogCluster{
				Fingerprint: fp,
				FirstSeen:   record.Timestamp,
				Sample: models.LogSample{
					Timestamp: record.Timestamp,
					Service:   record.Service,
					Host:      record.Host,
					Status:    record.Status,
					Message:   message,
				},
			}}
			groups[fp] = g
			order = append(order, fp)
		}
		g.cluster.CountIncident++
		g.messages = append(g.messages, normalized)
		if !record.Timestamp.IsZero() && (g.cluster.FirstSeen.IsZero() || record.Timestamp.Before(g.cluster.FirstSeen)) {
			g.cluster.FirstSeen = record.Timestamp
		}
	}

	sort.Strings(order)
	clusters := make([]models.LogCluster, 0, len(order))
	for _, fp := range order {
		g := groups[fp]
		g.cluster.Template = deriveTemplate(g.messages)
		clusters = append(clusters, g.cluster)
	}
	return clusters
}

// deriveTemplate prefers the longest common prefix across members when it is
// long enough to be meaningful, falling back to the first message.
func deriveTemplate(messages []string) string {
	if len(messages) == 0 {
		return ""
	}
	if len(messages) == 1 {
		return messages[0]
	}
	prefix := messages[0]
	for _, m := range messages[1:] {
		prefix = commonPrefix(prefix, m)
		if prefix == "" {
			break
		}
	}
	if len(prefix) >= templateMinPrefix {
		return prefix
	}
	return messages[0]
}

func commonPrefix(a, b string) string {
	limit := len(a)
	if len(b) < limit {
		limit = len(b)
	}
	i := 0
	for i < limit && a[i] == b[i] {
		i++
	}
	return a[:i]
}

// MergeBaselineCounts attaches baseline volumes to the incident clusters by
// fingerprint. Baseline-only fingerprints carry no incident evidence and are
// dropped.
func MergeBaselineCounts(incident, baseline []models.LogCluster) []models.LogCluster {
	baselineCounts := make(map[string]int, len(baseline))
	for _, c := range baseline {
		baselineCounts[c.Fingerprint] += c.CountIncident
	}

	merged := make([]models.LogCluster, 0, len(incident))
	for _, c := range incident {
		merged = append(merged, c.WithBaselineCount(baselineCounts[c.Fingerprint]))
	}
	return merged
}

// RankClusters scores and orders clusters by anomaly, truncating to limit.
// Ties break on incident volume, then fingerprint.
func RankClusters(clusters []models.LogCluster, limit int) []models.LogCluster {
	ranked := make([]models.LogCluster, 0, len(clusters))
	for _, c := range clusters {
		ranked = append(ranked, c.WithAnomalyScore(anomalyScore(c)))
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].AnomalyScore != ranked[j].AnomalyScore {
			return ranked[i].AnomalyScore > ranked[j].AnomalyScore
		}
		if ranked[i].CountIncident != ranked[j].CountIncident {
			return ranked[i].CountIncident > ranked[j].CountIncident
		}
		return ranked[i].Fingerprint < ranked[j].Fingerprint
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// anomalyScore blends incident volume (saturating at 1000 records) with a
// growth bucket. Patterns absent from the baseline take the top bucket.
func anomalyScore(c models.LogCluster) float64 {
	volume := float64(c.CountIncident)
	if volume > 1000 {
		volume = 1000
	}
	score := 0.4*(volume/1000) + 0.6*growthBucket(c)
	return clamp01(score)
}

func growthBucket(c models.LogCluster) float64 {
	if c.IsNewPattern() {
		return 1.0
	}
	ratio := c.GrowthRatio()
	switch {
	case ratio >= 10:
		return 0.9
	case ratio >= 5:
		return 0.7
	case ratio >= 2:
		return 0.5
	case ratio >= 1.5:
		return 0.3
	default:
		return 0.1
	}
}
