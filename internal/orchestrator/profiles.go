// Package orchestrator launches and supervises agent conversations: the
// three built-in agent profiles, each with its own tool whitelist, are
// composed into a conversation engine run and their lifecycle is reported
// through AgentStarted/AgentCompleted hook events.
package orchestrator

import "github.com/haasonsaas/coda/internal/toolexec"

// AgentType names one of the built-in agent profiles.
type AgentType string

const (
	AgentGeneralPurpose   AgentType = "general-purpose"
	AgentOutputStyleSetup AgentType = "output-style-setup"
	AgentStatuslineSetup  AgentType = "statusline-setup"
)

// Profile is a constant record describing one agent type: its purpose,
// the system-prompt text specific to it, and the tool permission profile
// that restricts which tools its conversation may invoke.
type Profile struct {
	Type        AgentType
	Purpose     string
	SystemExtra string
	Tools       toolexec.Profile
}

// builtinProfiles mirrors the three-row table from the conversation
// engine spec: general-purpose gets the unrestricted default, the two
// setup agents get file-manipulation-only and minimal whitelists
// respectively.
var builtinProfiles = map[AgentType]Profile{
	AgentGeneralPurpose: {
		Type:        AgentGeneralPurpose,
		Purpose:     "research, multi-step tasks",
		SystemExtra: "You are a general-purpose agent with access to every registered tool. Use them freely to complete the task.",
		Tools:       toolexec.Profile{Allow: []string{"*"}},
	},
	AgentOutputStyleSetup: {
		Type:        AgentOutputStyleSetup,
		Purpose:     "author a markdown-with-front-matter output style file",
		SystemExtra: "You author a single output style file: markdown content with YAML front matter. Only read, write, edit, and search the filesystem to do it.",
		Tools:       toolexec.Profile{Allow: []string{"Read", "Write", "Edit", "Glob", "Grep"}},
	},
	AgentStatuslineSetup: {
		Type:        AgentStatuslineSetup,
		Purpose:     "convert a shell PS1 string into a statusLine command",
		SystemExtra: "You convert the user's shell prompt into an equivalent statusLine command. Only read and edit the files needed to do that.",
		Tools:       toolexec.Profile{Allow: []string{"Read", "Edit"}},
	},
}

// LookupProfile returns the built-in Profile for agentType, or false if
// agentType names none of the three built-ins — this module implements no
// general-purpose agent-profile framework beyond them.
func LookupProfile(agentType AgentType) (Profile, bool) {
	p, ok := builtinProfiles[agentType]
	return p, ok
}
