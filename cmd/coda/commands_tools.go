package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func buildToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List and invoke built-in tools",
	}
	cmd.AddCommand(buildToolsListCmd(), buildToolsInvokeCmd())
	return cmd
}

func buildToolsListCmd() *cobra.Command {
	var workspace string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every registered tool and its JSON Schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if workspace == "" {
				workspace, err = os.Getwd()
				if err != nil {
					return err
				}
			}
			rt, err := buildRuntime(cfg, workspace)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, t := range rt.toolRegistry.List() {
				fmt.Fprintf(out, "%-14s %s\n", t.Name(), t.Description())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&workspace, "workspace", "", "workspace root tools are scoped to (default: current directory)")
	return cmd
}

func buildToolsInvokeCmd() *cobra.Command {
	var workspace string
	var paramsJSON string

	cmd := &cobra.Command{
		Use:   "invoke <tool> [--params '{...}']",
		Short: "Invoke a single tool directly, bypassing the conversation engine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if workspace == "" {
				workspace, err = os.Getwd()
				if err != nil {
					return err
				}
			}
			rt, err := buildRuntime(cfg, workspace)
			if err != nil {
				return err
			}

			params := json.RawMessage(paramsJSON)
			if len(params) == 0 {
				params = json.RawMessage("{}")
			}
			if !json.Valid(params) {
				return fmt.Errorf("--params is not valid JSON")
			}

			result, err := rt.toolRegistry.Invoke(cmd.Context(), args[0], params)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.Content)
			if result.IsError {
				return fmt.Errorf("tool reported an error")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&workspace, "workspace", "", "workspace root tools are scoped to (default: current directory)")
	cmd.Flags().StringVar(&paramsJSON, "params", "", "JSON parameters for the tool call")
	return cmd
}
