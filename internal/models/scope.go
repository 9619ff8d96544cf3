package models

import "strings"

// Scope narrows telemetry queries to the blast radius of an incident.
type Scope struct {
	Service    string   `json:"service"`
	Env        string   `json:"environment"`
	Region     string   `json:"region"`
	Cluster    string   `json:"cluster"`
	Hosts      []string `json:"hosts"`
	TagFilters []string `json:"tag_filters"`
}

// ScopeFromMonitorTags derives a scope from monitor tags of the form
// key:value. Unrecognised tags are preserved as raw filters.
func ScopeFromMonitorTags(tags []string) Scope {
	var s Scope
	for _, tag := range tags {
		key, value, found := strings.Cut(tag, ":")
		if !found || value == "" {
			continue
		}
		switch strings.ToLower(key) {
		case "service", "svc":
			if s.Service == "" {
				s.Service = value
			}
		case "env", "environment":
			if s.Env == "" {
				s.Env = value
			}
		case "region", "aws_region":
			if s.Region == "" {
				s.Region = value
			}
		case "cluster", "kube_cluster_name":
			if s.Cluster == "" {
				s.Cluster = value
			}
		default:
			s.TagFilters = append(s.TagFilters, key+":"+value)
		}
	}
	return s
}

// EventTagFilter renders the scope as a comma-joined tag list for the
// events API. Only dimensional fields participate.
func (s Scope) EventTagFilter() string {
	var parts []string
	if s.Service != "" {
		parts = append(parts, "service:"+s.Service)
	}
	if s.Env != "" {
		parts = append(parts, "env:"+s.Env)
	}
	if s.Region != "" {
		parts = append(parts, "region:"+s.Region)
	}
	if s.Cluster != "" {
		parts = append(parts, "cluster:"+s.Cluster)
	}
	return strings.Join(parts, ",")
}

// IsEmpty reports whether no dimension of the scope is set.
func (s Scope) IsEmpty() bool {
	return s.Service == "" && s.Env == "" && s.Region == "" && s.Cluster == "" &&
		len(s.Hosts) == 0 && len(s.TagFilters) == 0
}
