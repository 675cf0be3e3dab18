// Package config loads and merges the assistant's layered configuration:
// a global file, an optional project file, and CLI flag overrides, with
// later sources always taking precedence over earlier ones.
package config

import (
	"fmt"
	"time"
)

// Config is the fully resolved, defaulted, and validated configuration for
// one coda process.
type Config struct {
	LLM        LLMConfig        `yaml:"llm"`
	Tools      ToolsConfig      `yaml:"tools"`
	Hooks      HooksConfig      `yaml:"hooks"`
	Context    ContextConfig    `yaml:"context"`
	Session    SessionConfig    `yaml:"session"`
	Agents     AgentsConfig     `yaml:"agents"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Tracing    TracingConfig    `yaml:"tracing"`
}

// LLMConfig selects and configures the model providers available to the
// engine loop.
type LLMConfig struct {
	DefaultProvider string                       `yaml:"default_provider"`
	Providers       map[string]LLMProviderConfig `yaml:"providers"`
	FallbackChain   []string                     `yaml:"fallback_chain"`
}

// LLMProviderConfig configures a single named provider ("anthropic", "openai", ...).
type LLMProviderConfig struct {
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
	BaseURL      string `yaml:"base_url"`
}

// ToolsConfig configures the built-in tool set and permission profiles.
type ToolsConfig struct {
	Enabled         []string           `yaml:"enabled"`
	Profiles        map[string]Profile `yaml:"profiles"`
	DefaultProfile  string             `yaml:"default_profile"`
	MaxConcurrency  int                `yaml:"max_concurrency"`
	DefaultTimeout  time.Duration      `yaml:"default_timeout"`
}

// Profile is the raw YAML shape of a permission profile; toolexec.Profile
// is built from it at startup.
type Profile struct {
	Allow           []string `yaml:"allow"`
	Deny            []string `yaml:"deny"`
	RequireApproval []string `yaml:"require_approval"`
	AsyncTools      []string `yaml:"async_tools"`
}

// HooksConfig registers command and plugin hooks against lifecycle events.
type HooksConfig struct {
	ShellPrefix string           `yaml:"shell_prefix"`
	AsyncTimeout time.Duration   `yaml:"async_timeout"`
	Commands    []HookBinding    `yaml:"commands"`
	Plugins     []PluginBinding  `yaml:"plugins"`
}

// HookBinding wires a subprocess command to one or more event types.
type HookBinding struct {
	Events  []string `yaml:"events"`
	Command string   `yaml:"command"`
	Timeout time.Duration `yaml:"timeout"`
	Async   bool     `yaml:"async"`
}

// PluginBinding wires a long-lived plugin process to one or more event types.
type PluginBinding struct {
	Name    string   `yaml:"name"`
	Events  []string `yaml:"events"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// ContextConfig configures token accounting, pruning, and compaction.
type ContextConfig struct {
	MaxTokens            int     `yaml:"max_tokens"`
	CompactionThreshold  float64 `yaml:"compaction_threshold"`
	PruneThreshold       float64 `yaml:"prune_threshold"`
	KeepRecentMessages   int     `yaml:"keep_recent_messages"`
	KeepFirstUserMessage bool    `yaml:"keep_first_user_message"`
}

// SessionConfig configures where conversation state persists.
type SessionConfig struct {
	Store    string `yaml:"store"` // "memory" or "sqlite"
	Path     string `yaml:"path"`
	MaxTurns int    `yaml:"max_turns"`
}

// AgentsConfig maps agent-type names to orchestration profiles.
type AgentsConfig struct {
	DefaultAgent string                    `yaml:"default_agent"`
	Types        map[string]AgentTypeConfig `yaml:"types"`
}

// AgentTypeConfig is one named orchestration profile (tool profile, model override).
type AgentTypeConfig struct {
	ToolProfile string `yaml:"tool_profile"`
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model"`
	MaxTurns    int    `yaml:"max_turns"`
}

// LoggingConfig configures structured logging output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// TracingConfig configures OpenTelemetry trace export.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
	Endpoint    string `yaml:"endpoint"`
}

func applyDefaults(cfg *Config) {
	applyLLMDefaults(&cfg.LLM)
	applyToolsDefaults(&cfg.Tools)
	applyHooksDefaults(&cfg.Hooks)
	applyContextDefaults(&cfg.Context)
	applySessionDefaults(&cfg.Session)
	applyAgentsDefaults(&cfg.Agents)
	applyLoggingDefaults(&cfg.Logging)
	applyMetricsDefaults(&cfg.Metrics)
	applyTracingDefaults(&cfg.Tracing)
}

func applyLLMDefaults(cfg *LLMConfig) {
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = "anthropic"
	}
	if cfg.Providers == nil {
		cfg.Providers = map[string]LLMProviderConfig{}
	}
}

func applyToolsDefaults(cfg *ToolsConfig) {
	if cfg.MaxConcurrency == 0 {
		cfg.MaxConcurrency = 5
	}
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	if cfg.DefaultProfile == "" {
		cfg.DefaultProfile = "default"
	}
	if cfg.Profiles == nil {
		cfg.Profiles = map[string]Profile{}
	}
}

func applyHooksDefaults(cfg *HooksConfig) {
	if cfg.AsyncTimeout == 0 {
		cfg.AsyncTimeout = 30 * time.Second
	}
}

func applyContextDefaults(cfg *ContextConfig) {
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 180000
	}
	if cfg.CompactionThreshold == 0 {
		cfg.CompactionThreshold = 0.85
	}
	if cfg.PruneThreshold == 0 {
		cfg.PruneThreshold = 0.70
	}
	if cfg.KeepRecentMessages == 0 {
		cfg.KeepRecentMessages = 20
	}
}

func applySessionDefaults(cfg *SessionConfig) {
	if cfg.Store == "" {
		cfg.Store = "memory"
	}
	if cfg.MaxTurns == 0 {
		cfg.MaxTurns = 200
	}
}

func applyAgentsDefaults(cfg *AgentsConfig) {
	if cfg.DefaultAgent == "" {
		cfg.DefaultAgent = "general-purpose"
	}
	if cfg.Types == nil {
		cfg.Types = map[string]AgentTypeConfig{}
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "text"
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Addr == "" {
		cfg.Addr = ":9090"
	}
}

func applyTracingDefaults(cfg *TracingConfig) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "coda"
	}
}

func validateConfig(cfg *Config) error {
	if cfg.LLM.DefaultProvider == "" {
		return fmt.Errorf("llm.default_provider is required")
	}
	if cfg.Context.CompactionThreshold <= cfg.Context.PruneThreshold {
		return fmt.Errorf("context.compaction_threshold must be greater than context.prune_threshold")
	}
	if cfg.Session.Store != "memory" && cfg.Session.Store != "sqlite" {
		return fmt.Errorf("session.store must be \"memory\" or \"sqlite\", got %q", cfg.Session.Store)
	}
	return nil
}
