package hooks

import "github.com/mitchellh/mapstructure"

// PreToolUsePayload is the typed shape of a PreToolUse hook's
// hookSpecificOutput: it may narrow or widen the bare Decision with a
// permission-system-specific verdict and an updated tool input.
type PreToolUsePayload struct {
	HookEventName            string         `mapstructure:"hookEventName"`
	PermissionDecision       string         `mapstructure:"permissionDecision"`
	PermissionDecisionReason string         `mapstructure:"permissionDecisionReason"`
	UpdatedInput             map[string]any `mapstructure:"updatedInput"`
}

// UserPromptSubmitPayload is the typed shape of a UserPromptSubmit hook's
// hookSpecificOutput: additionalContext gets spliced into the prompt the
// engine actually sends, ahead of the user's own text.
type UserPromptSubmitPayload struct {
	HookEventName     string `mapstructure:"hookEventName"`
	AdditionalContext string `mapstructure:"additionalContext"`
}

// SessionStartPayload is the typed shape of a SessionStart hook's
// hookSpecificOutput.
type SessionStartPayload struct {
	HookEventName     string `mapstructure:"hookEventName"`
	AdditionalContext string `mapstructure:"additionalContext"`
}

// DecodePreToolUsePayload decodes resp.HookSpecificOutput into a
// PreToolUsePayload. A nil or empty map decodes to the zero value with no
// error, matching "hook produced no actionable directive".
func DecodePreToolUsePayload(resp *Response) (PreToolUsePayload, error) {
	var out PreToolUsePayload
	if resp == nil || len(resp.HookSpecificOutput) == 0 {
		return out, nil
	}
	err := mapstructure.Decode(resp.HookSpecificOutput, &out)
	return out, err
}

// DecodeUserPromptSubmitPayload decodes resp.HookSpecificOutput into a
// UserPromptSubmitPayload.
func DecodeUserPromptSubmitPayload(resp *Response) (UserPromptSubmitPayload, error) {
	var out UserPromptSubmitPayload
	if resp == nil || len(resp.HookSpecificOutput) == 0 {
		return out, nil
	}
	err := mapstructure.Decode(resp.HookSpecificOutput, &out)
	return out, err
}

// DecodeSessionStartPayload decodes resp.HookSpecificOutput into a
// SessionStartPayload.
func DecodeSessionStartPayload(resp *Response) (SessionStartPayload, error) {
	var out SessionStartPayload
	if resp == nil || len(resp.HookSpecificOutput) == 0 {
		return out, nil
	}
	err := mapstructure.Decode(resp.HookSpecificOutput, &out)
	return out, err
}
