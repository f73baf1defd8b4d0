package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	ai "github.com/spetersoncode/tandem"
	"github.com/spetersoncode/tandem/config"
	"github.com/spetersoncode/tandem/internal/store"
)

func sessionsCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List, show and delete saved sessions",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List saved sessions, newest first",
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := sessionApp(f)
				if err != nil {
					return err
				}
				return listSessions(cmd, a.sessions)
			},
		},
		&cobra.Command{
			Use:   "show <id>",
			Short: "Print a saved transcript",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := sessionApp(f)
				if err != nil {
					return err
				}
				rec, err := a.sessions.Load(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("load %s: %w", args[0], err)
				}
				printTranscript(cmd.OutOrStdout(), rec)
				return nil
			},
		},
		&cobra.Command{
			Use:   "rm <id>...",
			Short: "Delete saved sessions",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := sessionApp(f)
				if err != nil {
					return err
				}
				var errs []error
				for _, id := range args {
					if err := a.sessions.Delete(cmd.Context(), id); err != nil {
						errs = append(errs, fmt.Errorf("delete %s: %w", id, err))
					}
				}
				return errors.Join(errs...)
			},
		},
	)
	return cmd
}

func sessionApp(f *flags) (*app, error) {
	a, err := newApp(f, os.Stderr)
	if err != nil {
		return nil, err
	}
	if a.sessions == nil {
		return nil, errors.New("session saving is disabled; set agent.session_dir")
	}
	return a, nil
}

func listSessions(cmd *cobra.Command, sessions *store.SessionStore) error {
	ids, err := sessions.List(cmd.Context())
	if err != nil {
		return err
	}
	records := make([]store.SessionRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := sessions.Load(cmd.Context(), id)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "skipping %s: %v\n", id, err)
			continue
		}
		records = append(records, rec)
	}
	slices.SortFunc(records, func(a, b store.SessionRecord) int {
		return b.SavedAt.Compare(a.SavedAt)
	})

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSAVED\tMODEL\tMESSAGES\tFIRST PROMPT")
	for _, rec := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			rec.ID, rec.SavedAt.Local().Format(time.DateTime), rec.Model, len(rec.Messages), oneLine(firstPrompt(rec.Messages), 50))
	}
	return tw.Flush()
}

func firstPrompt(msgs []ai.Message) string {
	for _, m := range msgs {
		if m.Role == ai.RoleUser {
			return m.Text()
		}
	}
	return ""
}

func printTranscript(w io.Writer, rec store.SessionRecord) {
	fmt.Fprintf(w, "session %s · %s · %s\n", rec.ID, rec.Model, rec.Workdir)
	for _, m := range rec.Messages {
		switch m.Role {
		case ai.RoleUser:
			fmt.Fprintf(w, "\n> %s\n", m.Text())
		case ai.RoleAssistant:
			if text := m.Text(); text != "" {
				fmt.Fprintf(w, "\n%s\n", text)
			}
			for _, call := range m.ToolCalls() {
				fmt.Fprintf(w, "  ▸ %s %s\n", call.Name, oneLine(call.Arguments, maxArgsPreview))
			}
		case ai.RoleTool:
			for _, res := range m.ToolResults() {
				fmt.Fprintf(w, "    ⎿ %s\n", indent(clip(res.Content, maxResultPreview), "      "))
			}
		case ai.RoleUI:
			fmt.Fprintf(w, "· %s\n", m.Text())
		}
	}
}

func configCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and initialize configuration",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "init",
			Short: "Write a default user configuration file if none exists",
			RunE: func(cmd *cobra.Command, args []string) error {
				loader := config.NewLoader(newLogger(config.LogConfig{Level: f.logLevel}, os.Stderr))
				path, err := loader.EnsureUserConfig()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration",
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := newApp(f, os.Stderr)
				if err != nil {
					return err
				}
				data, err := yaml.Marshal(a.cfg)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the configuration files in load order",
			RunE: func(cmd *cobra.Command, args []string) error {
				workdir := f.workdir
				if workdir == "" {
					workdir, _ = os.Getwd()
				}
				loader := config.NewLoader(nil, config.WithWorkdir(workdir))
				fmt.Fprintln(cmd.OutOrStdout(), loader.UserConfigPath())
				if p := loader.FindProjectConfig(); p != "" {
					fmt.Fprintln(cmd.OutOrStdout(), p)
				}
				return nil
			},
		},
	)
	return cmd
}
