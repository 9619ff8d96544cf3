package analysis

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/faultlinehq/faultline/internal/repo"
)

func TestScopeFromLogsMajorityVote(t *testing.T) {
	records := []repo.LogRecord{
		{Service: "checkout", Host: "web-1", Attributes: map[string]string{"env": "prod"}},
		{Service: "checkout", Host: "web-1", Tags: []string{"region:us-east-1"}},
		{Service: "checkout", Host: "web-2", Attributes: map[string]string{
			"env":    "prod",
			"ddtags": "cluster:prod-eks, region:us-east-1",
		}},
		{Service: "payments", Host: "web-3", Attributes: map[string]string{"environment": "staging"}},
	}

	scope := ScopeFromLogs(records)
	if scope.Service != "checkout" {
		t.Fatalf("service = %q", scope.Service)
	}
	if scope.Env != "prod" {
		t.Fatalf("env = %q", scope.Env)
	}
	if scope.Region != "us-east-1" {
		t.Fatalf("region = %q", scope.Region)
	}
	if scope.Cluster != "prod-eks" {
		t.Fatalf("cluster = %q", scope.Cluster)
	}
	if want := []string{"web-1", "web-2", "web-3"}; !reflect.DeepEqual(scope.Hosts, want) {
		t.Fatalf("hosts = %v, want %v", scope.Hosts, want)
	}
}

func TestScopeFromLogsEmpty(t *testing.T) {
	if scope := ScopeFromLogs(nil); !scope.IsEmpty() {
		t.Fatalf("scope = %+v, want empty", scope)
	}
}

func TestScopeFromLogsTieBreaksLexicographically(t *testing.T) {
	records := []repo.LogRecord{
		{Service: "zulu"},
		{Service: "alpha"},
	}
	if scope := ScopeFromLogs(records); scope.Service != "alpha" {
		t.Fatalf("service = %q, want alpha", scope.Service)
	}
}

func TestScopeFromLogsHostCap(t *testing.T) {
	records := make([]repo.LogRecord, 0, 7)
	for i := 1; i <= 7; i++ {
		records = append(records, repo.LogRecord{Host: fmt.Sprintf("host-%d", i)})
	}

	scope := ScopeFromLogs(records)
	if len(scope.Hosts) != 5 {
		t.Fatalf("hosts = %v", scope.Hosts)
	}
	if scope.Hosts[4] != "host-5" {
		t.Fatalf("hosts = %v", scope.Hosts)
	}
}
