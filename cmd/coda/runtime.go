package main

import (
	"context"
	"fmt"
	"os"

	"github.com/haasonsaas/coda/internal/config"
	"github.com/haasonsaas/coda/internal/hooks"
	"github.com/haasonsaas/coda/internal/llm"
	"github.com/haasonsaas/coda/internal/orchestrator"
	"github.com/haasonsaas/coda/internal/session"
	"github.com/haasonsaas/coda/internal/tokens"
	"github.com/haasonsaas/coda/internal/toolexec"
	"github.com/haasonsaas/coda/internal/tools"
)

// runtime holds everything one coda process needs to launch and persist
// agent conversations, assembled once from a resolved Config.
type runtime struct {
	cfg             *config.Config
	providers       *llm.Registry
	defaultProvider llm.Provider
	toolRegistry    *toolexec.Registry
	executor        *toolexec.Executor
	hookRegistry    *hooks.Registry
	hookCommands    map[hooks.EventType][]hooks.CommandSpec
	hookPlugins     map[hooks.EventType][]hooks.PluginSpec
	pluginHost      *hooks.PluginHost
	accountant      *tokens.Accountant
	compactor       *tokens.Compactor
	store           session.Store
	orchestrator    *orchestrator.Orchestrator
	tracingShutdown func(context.Context) error
}

// providerOrNil returns the resolved default provider, or nil if none of
// the configured providers had a usable API key.
func (rt *runtime) providerOrNil() llm.Provider {
	return rt.defaultProvider
}

// loadConfig loads and layers the global and project config files named
// by the root command's --config flag / CODA_CONFIG / coda.yaml default.
func loadConfig() (*config.Config, error) {
	return config.Load(config.Sources{
		GlobalPath:  globalConfigPath(),
		ProjectPath: resolveConfigPath(),
	})
}

// buildRuntime wires a runtime from a resolved Config, rooted at workspace.
func buildRuntime(cfg *config.Config, workspace string) (*runtime, error) {
	providers, defaultProvider, err := buildProviderRegistry(cfg)
	if err != nil {
		return nil, err
	}

	toolRegistry := toolexec.NewRegistry()
	tools.Register(toolRegistry, tools.Config{Workspace: workspace, MaxReadBytes: 0})

	executorCfg := toolexec.DefaultConfig()
	executorCfg.MaxConcurrency = cfg.Tools.MaxConcurrency
	executorCfg.DefaultTimeout = cfg.Tools.DefaultTimeout
	executor := toolexec.NewExecutor(toolRegistry, executorCfg)

	hookRegistry := hooks.NewRegistry(nil)
	hookCommands := buildHookCommands(cfg.Hooks)
	hookPlugins := buildHookPlugins(cfg.Hooks)
	var pluginHost *hooks.PluginHost
	if len(hookPlugins) > 0 {
		pluginHost = hooks.NewPluginHost()
	}

	var metrics *tokens.Metrics
	if cfg.Metrics.Enabled {
		metrics = tokens.NewMetrics()
	}
	accountant := tokens.NewAccountant(nil, nil, metrics)

	modelID := resolveModelID(cfg)
	var summarizer tokens.SummaryProvider
	if defaultProvider != nil {
		summarizer = &tokens.LLMSummaryProvider{Provider: defaultProvider, ModelID: modelID}
	}
	settings := tokens.DefaultSettings()
	settings.TargetRatio = cfg.Context.PruneThreshold
	compactor := tokens.NewCompactor(accountant, modelID, settings, summarizer)

	store, err := buildStore(cfg.Session)
	if err != nil {
		return nil, err
	}

	tracingShutdown, err := setupTracing(cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}

	orc := orchestrator.New(orchestrator.Config{
		Provider:            defaultProvider,
		ModelID:             modelID,
		Tools:               toolRegistry,
		Executor:            executor,
		HookRegistry:        hookRegistry,
		HookCommands:        hookCommands,
		HookPlugins:         hookPlugins,
		PluginHost:          pluginHost,
		Accountant:          accountant,
		Compactor:           compactor,
		BaseSystemPrompt:    "You are coda, a terminal-resident coding assistant operating on the files in the current workspace.",
		MaxTokens:           cfg.Context.MaxTokens,
		CompactionThreshold: cfg.Context.CompactionThreshold,
	})
	toolRegistry.Register(tools.NewTaskTool(orc))

	return &runtime{
		cfg:             cfg,
		providers:       providers,
		defaultProvider: defaultProvider,
		toolRegistry:    toolRegistry,
		executor:        executor,
		hookRegistry:    hookRegistry,
		hookCommands:    hookCommands,
		hookPlugins:     hookPlugins,
		pluginHost:      pluginHost,
		accountant:      accountant,
		compactor:       compactor,
		store:           store,
		orchestrator:    orc,
		tracingShutdown: tracingShutdown,
	}, nil
}

func buildProviderRegistry(cfg *config.Config) (*llm.Registry, llm.Provider, error) {
	registry := llm.NewRegistry()

	for name, pcfg := range cfg.LLM.Providers {
		switch name {
		case "anthropic":
			apiKey := resolveAPIKey(pcfg.APIKey, "ANTHROPIC_API_KEY")
			if apiKey == "" {
				continue
			}
			p, err := llm.NewAnthropicProvider(llm.AnthropicConfig{
				APIKey:       apiKey,
				BaseURL:      pcfg.BaseURL,
				DefaultModel: pcfg.DefaultModel,
			})
			if err != nil {
				return nil, nil, fmt.Errorf("anthropic provider: %w", err)
			}
			registry.Register(p)
		case "openai":
			apiKey := resolveAPIKey(pcfg.APIKey, "OPENAI_API_KEY")
			if apiKey == "" {
				continue
			}
			p, err := llm.NewOpenAIProvider(llm.OpenAIConfig{
				APIKey:       apiKey,
				BaseURL:      pcfg.BaseURL,
				DefaultModel: pcfg.DefaultModel,
			})
			if err != nil {
				return nil, nil, fmt.Errorf("openai provider: %w", err)
			}
			registry.Register(p)
		}
	}
	registry.SetFallbackChain(cfg.LLM.FallbackChain)

	if _, ok := registry.Get(cfg.LLM.DefaultProvider); !ok {
		return registry, nil, nil
	}
	if len(cfg.LLM.FallbackChain) == 0 {
		provider, _ := registry.Get(cfg.LLM.DefaultProvider)
		return registry, provider, nil
	}
	return registry, llm.NewFallbackProvider(registry, cfg.LLM.DefaultProvider), nil
}

func resolveAPIKey(configured, envVar string) string {
	if configured != "" {
		return configured
	}
	return os.Getenv(envVar)
}

func resolveModelID(cfg *config.Config) string {
	if pcfg, ok := cfg.LLM.Providers[cfg.LLM.DefaultProvider]; ok && pcfg.DefaultModel != "" {
		return pcfg.DefaultModel
	}
	return "claude-sonnet-4-20250514"
}

func buildHookCommands(cfg config.HooksConfig) map[hooks.EventType][]hooks.CommandSpec {
	out := make(map[hooks.EventType][]hooks.CommandSpec)
	for _, binding := range cfg.Commands {
		spec := hooks.CommandSpec{
			Command: binding.Command,
			Timeout: binding.Timeout,
		}
		for _, evtName := range binding.Events {
			evt := hooks.EventType(evtName)
			out[evt] = append(out[evt], spec)
		}
	}
	return out
}

func buildHookPlugins(cfg config.HooksConfig) map[hooks.EventType][]hooks.PluginSpec {
	out := make(map[hooks.EventType][]hooks.PluginSpec)
	for _, binding := range cfg.Plugins {
		spec := hooks.PluginSpec{
			Name:    binding.Name,
			Command: binding.Command,
			Args:    binding.Args,
		}
		for _, evtName := range binding.Events {
			evt := hooks.EventType(evtName)
			out[evt] = append(out[evt], spec)
		}
	}
	return out
}

func buildStore(cfg config.SessionConfig) (session.Store, error) {
	switch cfg.Store {
	case "sqlite":
		path := cfg.Path
		if path == "" {
			path = "coda.db"
		}
		return session.NewSQLiteStore(path)
	default:
		return session.NewMemoryStore(), nil
	}
}
