package analysis

import (
	"sort"
	"strings"

	"github.com/faultlinehq/faultline/internal/models"
	"github.com/faultlinehq/faultline/internal/repo"
)

// ScopeFromLogs derives an incident scope from log records by majority vote
// across record fields, tags, and the ddtags attribute. Up to five hosts are
// kept, most frequent first.
func ScopeFromLogs(records []repo.LogRecord) models.Scope {
	if len(records) == 0 {
		return models.Scope{}
	}

	services := map[string]int{}
	envs := map[string]int{}
	regions := map[string]int{}
	clusters := map[string]int{}
	hosts := map[string]int{}

	vote := func(key, value string) {
		if value == "" {
			return
		}
		switch strings.ToLower(key) {
		case "service", "svc":
			services[value]++
		case "env", "environment":
			envs[value]++
		case "region", "aws_region":
			regions[value]++
		case "cluster", "kube_cluster_name":
			clusters[value]++
		}
	}

	for _, record := range records {
		if record.Service != "" {
			services[record.Service]++
		}
		if record.Host != "" {
			hosts[record.Host]++
		}
		for key, value := range record.Attributes {
			vote(key, value)
		}
		for _, tag := range record.Tags {
			if key, value, found := strings.Cut(tag, ":"); found {
				vote(key, value)
			}
		}
		if ddtags := record.Attributes["ddtags"]; ddtags != "" {
			for _, tag := range strings.Split(ddtags, ",") {
				if key, value, found := strings.Cut(strings.TrimSpace(tag), ":"); found {
					vote(key, value)
				}
			}
		}
	}

	return models.Scope{
		Service: mostCommon(services),
		Env:     mostCommon(envs),
		Region:  mostCommon(regions),
		Cluster: mostCommon(clusters),
		Hosts:   topKeys(hosts, 5),
	}
}

// mostCommon picks the highest-count key, breaking ties lexicographically so
// derivation stays deterministic.
func mostCommon(counts map[string]int) string {
	best := ""
	bestCount := 0
	for key, count := range counts {
		if count > bestCount || (count == bestCount && (best == "" || key < best)) {
			best = key
			bestCount = count
		}
	}
	return best
}

func topKeys(counts map[string]int, n int) []string {
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}
