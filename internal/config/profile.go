package config

import "github.com/haasonsaas/coda/internal/toolexec"

// ToToolExecProfile converts the raw YAML permission profile into the
// toolexec.Profile the engine actually evaluates tool calls against.
// AsyncTools has no toolexec.Profile equivalent; it is read separately by
// whatever drives background tool dispatch.
func (p Profile) ToToolExecProfile() toolexec.Profile {
	return toolexec.Profile{
		Allow:           p.Allow,
		Deny:            p.Deny,
		RequireApproval: p.RequireApproval,
	}
}

// ResolveToolProfile looks up name in cfg's tool profiles and converts it,
// falling back to the configured default profile, and finally to an
// unrestricted profile if neither is defined.
func (cfg *ToolsConfig) ResolveToolProfile(name string) toolexec.Profile {
	if name == "" {
		name = cfg.DefaultProfile
	}
	if raw, ok := cfg.Profiles[name]; ok {
		return raw.ToToolExecProfile()
	}
	if raw, ok := cfg.Profiles[cfg.DefaultProfile]; ok {
		return raw.ToToolExecProfile()
	}
	return toolexec.Profile{}
}
