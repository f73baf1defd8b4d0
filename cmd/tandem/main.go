// Command tandem is a terminal coding agent. The model proposes shell
// commands and file patches; tandem runs them once they pass the approval
// policy.
//
// Usage:
//
//	tandem                          interactive session in the current directory
//	tandem "fix the failing test"   start with a prompt
//	tandem --policy auto-edit       auto-approve reads and in-tree edits
//	tandem --events agui            AG-UI JSON lines on stdout, input on stdin
//	tandem serve --addr :8000       AG-UI over HTTP server-sent events
//	tandem mcp serve                expose the gated shell and patch tools over MCP
//
// Configuration is read from ~/.config/tandem/config.yaml, tandem.yaml and
// the environment (TANDEM_PROVIDER, TANDEM_MODEL, ANTHROPIC_API_KEY, ...).
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

const (
	appName = "tandem"
	Version = "0.1.0"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// flags are the command-line overrides shared by every subcommand.
type flags struct {
	workdir   string
	provider  string
	model     string
	policy    string
	maxTurns  int
	logLevel  string
	logFormat string

	events      string
	metricsAddr string
	resume      string
	once        bool
}

func rootCmd() *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:   "tandem [prompt]",
		Short: "Terminal coding agent with approval-gated tools",
		Long: `tandem drives a conversation between a language model and your working
directory. The model proposes shell commands and patches; each one is checked
against the approval policy and, when required, confirmed by you first.

Approval policies:
  suggest     ask before every command and patch
  auto-edit   run read-only commands and in-tree patches without asking
  full-auto   run everything, sandboxed when a sandbox wrapper is configured

Inside a session, type /help for commands.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd.Context(), f, args)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&f.workdir, "workdir", "C", "", "Working directory (default: current directory)")
	pf.StringVar(&f.provider, "provider", "", "Model provider: anthropic, openai or google")
	pf.StringVarP(&f.model, "model", "m", "", "Model ID")
	pf.StringVarP(&f.policy, "policy", "a", "", "Approval policy: suggest, auto-edit or full-auto")
	pf.IntVar(&f.maxTurns, "max-turns", 0, "Maximum model turns per message")
	pf.StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&f.logFormat, "log-format", "", "Log format (text, json)")

	cmd.Flags().StringVar(&f.events, "events", "text", "Output mode: text or agui")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address")
	cmd.Flags().StringVar(&f.resume, "resume", "", "Resume a saved session by ID")
	cmd.Flags().BoolVar(&f.once, "once", false, "Exit after the first prompt's turn loop ends")

	cmd.AddCommand(
		versionCmd(),
		configCmd(f),
		sessionsCmd(f),
		serveCmd(f),
		mcpCmd(f),
	)
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", appName, Version)
		},
	}
}
