package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/coda/internal/engine"
	"github.com/haasonsaas/coda/internal/session"
	"github.com/haasonsaas/coda/internal/tokens"
	"github.com/haasonsaas/coda/internal/toolexec"
	"github.com/haasonsaas/coda/pkg/model"
)

func buildRunCmd() *cobra.Command {
	var oneShot string
	var workspace string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a new conversation (interactive, or one turn with --prompt)",
		Long: `run starts an interactive REPL against the configured model provider,
with every built-in tool available in the workspace directory. Pass
--prompt to run a single turn non-interactively instead (e.g. for
scripting) and exit once the assistant finishes responding.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if workspace == "" {
				workspace, err = os.Getwd()
				if err != nil {
					return fmt.Errorf("resolve workspace: %w", err)
				}
			}

			rt, err := buildRuntime(cfg, workspace)
			if err != nil {
				return fmt.Errorf("build runtime: %w", err)
			}
			defer rt.tracingShutdown(context.Background())

			profile := cfg.Tools.ResolveToolProfile("")
			gate := engine.NewHookGate(rt.hookRegistry, rt.hookCommands, profile)
			if rt.pluginHost != nil {
				defer rt.pluginHost.Close()
				gate = gate.WithPlugins(rt.pluginHost, rt.hookPlugins)
			}

			modelID := resolveModelID(cfg)
			systemPrompt := "You are coda, a terminal-resident coding assistant operating on the files in the current workspace."
			loop := engine.New(engine.Config{
				Provider:            rt.providerOrNil(),
				ModelID:             modelID,
				Tools:               rt.toolRegistry,
				Executor:            rt.executor,
				Gate:                gate,
				Accountant:          rt.accountant,
				Compactor:           rt.compactor,
				SystemPrompt:        systemPrompt,
				MaxTokens:           cfg.Context.MaxTokens,
				CompactionThreshold: cfg.Context.CompactionThreshold,
			})
			conv := engine.NewConversation(uuid.New().String(), "general-purpose")

			out := cmd.OutOrStdout()
			ctx := cmd.Context()

			if err := rt.store.CreateConversation(ctx, conv.Conversation); err != nil {
				fmt.Fprintf(out, "warning: failed to persist conversation: %v\n", err)
			}

			var convMu sync.Mutex
			if err := rt.accountant.StartPressureSweep("@every 30s", func() {
				warnIfUnderPressure(rt.accountant, &convMu, conv, modelID, systemPrompt, rt.toolRegistry.List(), out)
			}); err != nil {
				fmt.Fprintf(out, "warning: failed to start token pressure sweep: %v\n", err)
			}
			defer rt.accountant.StopPressureSweep()

			if strings.TrimSpace(oneShot) != "" {
				return runTurn(ctx, loop, conv, &convMu, oneShot, out, rt.store)
			}
			return runREPL(ctx, loop, conv, &convMu, cmd.InOrStdin(), out, rt.store)
		},
	}

	cmd.Flags().StringVar(&oneShot, "prompt", "", "run a single turn non-interactively with this prompt, then exit")
	cmd.Flags().StringVar(&workspace, "workspace", "", "workspace root tools are scoped to (default: current directory)")
	return cmd
}

func runREPL(ctx context.Context, loop *engine.Loop, conv *engine.Conversation, convMu *sync.Mutex, stdin io.Reader, out io.Writer, store session.Store) error {
	fmt.Fprintln(out, "coda: interactive session. Ctrl-D or \"exit\" to quit.")
	scanner := bufio.NewScanner(stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}
		if err := runTurn(ctx, loop, conv, convMu, line, out, store); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
}

// runTurn drives one user turn to completion, rendering events to out and
// persisting every message the turn appended to conv once it's done.
// convMu is held for the whole turn so the background token-pressure
// sweep (which reads conv.Messages between turns) never observes conv
// mid-mutation.
func runTurn(ctx context.Context, loop *engine.Loop, conv *engine.Conversation, convMu *sync.Mutex, prompt string, out io.Writer, store session.Store) error {
	convMu.Lock()
	defer convMu.Unlock()

	before := len(conv.Messages)

	events, err := loop.Run(ctx, conv, prompt)
	if err != nil {
		return err
	}

	var runErr error
	for evt := range events {
		switch evt.Kind {
		case engine.EventText:
			fmt.Fprint(out, evt.Text)
		case engine.EventToolStarted:
			fmt.Fprintf(out, "\n[tool] %s\n", evt.ToolName)
		case engine.EventCompaction:
			fmt.Fprintln(out, "\n[context compacted]")
		case engine.EventError:
			runErr = evt.Err
		case engine.EventDone:
			fmt.Fprintln(out)
		}
	}

	for _, msg := range conv.Messages[before:] {
		if err := store.AppendMessage(ctx, conv.ID, msg); err != nil {
			fmt.Fprintf(out, "warning: failed to persist message: %v\n", err)
		}
	}
	if err := store.TouchConversation(ctx, conv.ID); err != nil {
		fmt.Fprintf(out, "warning: failed to touch conversation: %v\n", err)
	}

	return runErr
}

// warnIfUnderPressure runs on the accountant's background sweep, between
// turns, so a conversation idling at the prompt still gets a context-window
// warning rather than only discovering the pressure inline at the start of
// its next turn. convMu is only held long enough to snapshot the
// conversation's current message slice.
func warnIfUnderPressure(accountant *tokens.Accountant, convMu *sync.Mutex, conv *engine.Conversation, modelID, systemPrompt string, tools []toolexec.Tool, out io.Writer) {
	convMu.Lock()
	messages := append([]*model.Message(nil), conv.Messages...)
	convMu.Unlock()

	if len(messages) == 0 {
		return
	}

	pressure := accountant.Pressure(modelID, systemPrompt, messages, tools)
	if tokens.IsHardWarn(pressure) {
		fmt.Fprintf(out, "\n[warning: context window at %.0f%% — expect compaction soon]\n> ", pressure*100)
	}
}
