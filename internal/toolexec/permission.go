package toolexec

import "strings"

// Decision is the outcome of evaluating a tool call against a permission
// profile's allow/deny/ask pattern lists.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionDeny  Decision = "deny"
	DecisionAsk   Decision = "ask"
)

// Profile holds the pattern lists that gate which tools an agent type may
// invoke, and which invocations require a PreToolUse hook approval before
// running.
type Profile struct {
	Allow           []string
	Deny            []string
	RequireApproval []string
}

// Evaluate applies deny-then-allow-then-ask precedence: an explicit deny
// always wins, an explicit allow always runs without approval unless it
// also matches RequireApproval, and anything unmatched by Allow defaults
// to deny once Allow is non-empty (an empty Allow list means "no
// restriction", matching an unscoped default profile).
func (p Profile) Evaluate(toolName string) Decision {
	name := CanonicalName(toolName)

	if matchesAny(p.Deny, name) {
		return DecisionDeny
	}
	if len(p.Allow) > 0 && !matchesAny(p.Allow, name) {
		return DecisionDeny
	}
	if matchesAny(p.RequireApproval, name) {
		return DecisionAsk
	}
	return DecisionAllow
}

// CanonicalName normalizes a tool name for pattern matching: MCP-namespaced
// tools ("mcp:server:name") are left intact, everything else is
// lower-cased so pattern lists are case-insensitive.
func CanonicalName(name string) string {
	if strings.HasPrefix(name, "mcp:") {
		return name
	}
	return strings.ToLower(name)
}

func matchesAny(patterns []string, toolName string) bool {
	for _, pattern := range patterns {
		if MatchPattern(CanonicalName(pattern), toolName) {
			return true
		}
	}
	return false
}

// MatchPattern reports whether toolName satisfies pattern, supporting:
//   - "*"      matches every tool
//   - "mcp:*"  matches any MCP-namespaced tool
//   - "x.*"    matches toolName with prefix "x."
//   - "x"      exact match
func MatchPattern(pattern, toolName string) bool {
	if pattern == "" || toolName == "" {
		return false
	}
	if pattern == "*" {
		return true
	}
	if pattern == "mcp:*" {
		return strings.HasPrefix(toolName, "mcp:")
	}
	if strings.HasSuffix(pattern, ".*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(toolName, prefix)
	}
	return pattern == toolName
}

// FilterTools returns the subset of tools allowed (not denied) by profile.
// Ask-gated tools are still included; the caller enforces approval at
// invocation time via Evaluate.
func FilterTools(profile Profile, tools []Tool) []Tool {
	filtered := make([]Tool, 0, len(tools))
	for _, t := range tools {
		if profile.Evaluate(t.Name()) != DecisionDeny {
			filtered = append(filtered, t)
		}
	}
	return filtered
}
