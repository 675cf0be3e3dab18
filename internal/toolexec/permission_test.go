package toolexec

import "testing"

func TestProfileEvaluateDenyWinsOverAllow(t *testing.T) {
	p := Profile{Allow: []string{"bash"}, Deny: []string{"bash"}}
	if got := p.Evaluate("bash"); got != DecisionDeny {
		t.Fatalf("expected deny, got %s", got)
	}
}

func TestProfileEvaluateUnlistedToolDeniedWhenAllowSet(t *testing.T) {
	p := Profile{Allow: []string{"read_file"}}
	if got := p.Evaluate("bash"); got != DecisionDeny {
		t.Fatalf("expected deny for unlisted tool, got %s", got)
	}
}

func TestProfileEvaluateEmptyAllowMeansUnrestricted(t *testing.T) {
	p := Profile{}
	if got := p.Evaluate("anything"); got != DecisionAllow {
		t.Fatalf("expected allow with empty profile, got %s", got)
	}
}

func TestProfileEvaluateRequireApprovalAsksWhenAllowed(t *testing.T) {
	p := Profile{Allow: []string{"bash"}, RequireApproval: []string{"bash"}}
	if got := p.Evaluate("bash"); got != DecisionAsk {
		t.Fatalf("expected ask, got %s", got)
	}
}

func TestMatchPatternWildcards(t *testing.T) {
	cases := []struct {
		pattern, tool string
		want          bool
	}{
		{"*", "bash", true},
		{"mcp:*", "mcp:github:search", true},
		{"mcp:*", "bash", false},
		{"fs.*", "fs.read", true},
		{"fs.*", "fsx.read", false},
		{"bash", "bash", true},
		{"bash", "Bash", false},
	}
	for _, c := range cases {
		if got := MatchPattern(c.pattern, c.tool); got != c.want {
			t.Errorf("MatchPattern(%q, %q) = %v, want %v", c.pattern, c.tool, got, c.want)
		}
	}
}

func TestCanonicalNamePreservesMCPPrefix(t *testing.T) {
	if got := CanonicalName("mcp:Github:Search"); got != "mcp:Github:Search" {
		t.Fatalf("expected mcp-prefixed name untouched, got %q", got)
	}
	if got := CanonicalName("Bash"); got != "bash" {
		t.Fatalf("expected lower-cased name, got %q", got)
	}
}
