package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/coda/internal/hooks"
)

func buildHooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hooks",
		Short: "Inspect and exercise configured lifecycle hooks",
	}
	cmd.AddCommand(buildHooksListCmd(), buildHooksTestCmd())
	return cmd
}

func buildHooksListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List command hooks grouped by lifecycle event",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(cfg.Hooks.Commands) == 0 {
				fmt.Fprintln(out, "no command hooks configured")
				return nil
			}
			for _, binding := range cfg.Hooks.Commands {
				fmt.Fprintf(out, "%-20s %s\n", joinEvents(binding.Events), binding.Command)
			}
			return nil
		},
	}
}

func joinEvents(events []string) string {
	out := ""
	for i, e := range events {
		if i > 0 {
			out += ","
		}
		out += e
	}
	return out
}

func buildHooksTestCmd() *cobra.Command {
	var eventName string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "test <command>",
		Short: "Run one command hook against a synthetic event and print its decoded response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			evt := hooks.NewEvent(hooks.EventType(eventName), "hooks-test")
			evt.Prompt = "example prompt"

			runner := hooks.NewCommandRunner(1 << 20)
			spec := hooks.CommandSpec{Command: args[0], Timeout: timeout}
			resp, err := runner.Run(cmd.Context(), spec, evt)
			if err != nil {
				return fmt.Errorf("run hook: %w", err)
			}
			if resp == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "hook produced no response")
				return nil
			}

			var buf bytes.Buffer
			enc := json.NewEncoder(&buf)
			enc.SetIndent("", "  ")
			if err := enc.Encode(resp); err != nil {
				return fmt.Errorf("encode response: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), buf.String())

			if hooks.EventType(eventName) == hooks.EventPreToolUse {
				payload, err := hooks.DecodePreToolUsePayload(resp)
				if err != nil {
					return fmt.Errorf("decode hookSpecificOutput: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "decoded permission decision: %q (%s)\n", payload.PermissionDecision, payload.PermissionDecisionReason)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&eventName, "event", string(hooks.EventPreToolUse), "lifecycle event to simulate")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "subprocess timeout")
	return cmd
}
