package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	ai "github.com/spetersoncode/tandem"
	"github.com/spetersoncode/tandem/cancel"
	"github.com/spetersoncode/tandem/gate"
	"github.com/spetersoncode/tandem/internal/localexec"
	"github.com/spetersoncode/tandem/mcp"
)

func mcpCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Work with MCP tool servers",
	}
	cmd.AddCommand(mcpServeCmd(f), mcpListCmd(f))
	return cmd
}

func mcpServeCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the gated shell and apply_patch tools over MCP stdio",
		Long: `serve exposes tandem's shell and apply_patch tools to an MCP client over
stdin/stdout. Calls pass through the same approval gate as an interactive
session, but there is nobody to ask: anything the policy does not approve
automatically is denied. Use --policy full-auto to run everything.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(f, os.Stderr)
			if err != nil {
				return err
			}
			g := a.gate()
			policy := a.cfg.Approval.Policy
			roots := a.cfg.Approval.WritableRoots
			tools := slices.DeleteFunc(ai.NativeTools(), func(t ai.Tool) bool {
				return t.Name == ai.ToolUserSelect
			})

			a.logger.Info("serving tools over MCP stdio", "policy", policy, "workdir", a.workdir)
			return mcp.ServeStdio(tools, gatedHandler(g, policy, roots),
				mcp.WithName(appName),
				mcp.WithVersion(Version),
			)
		},
	}
}

// gate builds an execution gate for hosts without a workflow.
func (a *app) gate() *gate.Gate {
	session := ai.NewSession(a.cfg.Model.Name, a.workdir, a.logger)
	return gate.New(session,
		gate.WithExecutor(localexec.New(
			localexec.WithSandboxWrapper(a.cfg.Approval.Sandbox...),
			localexec.WithLogger(a.logger),
		)),
		gate.WithPatchApplier(localexec.NewPatcher(a.logger)),
		gate.WithExemptCommands(a.cfg.Approval.ExemptCommands...),
		gate.WithMetrics(a.metrics),
	)
}

// gatedHandler passes each MCP call through g without a confirmation
// handler.
func gatedHandler(g *gate.Gate, policy ai.ApprovalPolicy, roots []string) mcp.Handler {
	return func(ctx context.Context, call ai.ToolCall) ai.ToolResult {
		out := g.Execute(cancel.FromContext(ctx), call, policy, roots, nil)
		if out.Dropped {
			return ai.ToolResult{ToolCallID: call.ID, Name: call.Name, Content: "cancelled", IsError: true}
		}
		return out.Result
	}
}

func mcpListCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Connect to the configured MCP servers and list their status",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(f, os.Stderr)
			if err != nil {
				return err
			}
			if len(a.cfg.MCP.Servers) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no MCP servers configured")
				return nil
			}

			ctx, cancelFn := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancelFn()
			m := mcp.NewManager(ai.NewSession(a.cfg.Model.Name, a.workdir, a.logger), mcp.WithClientInfo(appName, Version))
			m.Initialize(ctx, a.cfg.MCP.Servers)
			defer func() { _ = m.CloseAll() }()
			tools := m.AllTools(ctx)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tTRANSPORT\tSTATUS\tTOOLS")
			for _, p := range m.Providers() {
				status := "connected"
				if !p.Connected {
					status = "failed: " + p.Error
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", p.Name, p.Transport, status, p.Tools)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d tools available\n", len(tools))
			return nil
		},
	}
}
