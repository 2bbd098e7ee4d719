package main

import (
	"context"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect and prune persisted tab sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions, most recently updated first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDeps(cmd.Context(), func(ctx context.Context, d *deps) error {
			list, err := d.sessions.List(ctx)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				pterm.Info.Println("No sessions found")
				return nil
			}
			rows := pterm.TableData{{"Tab", "URL", "Last Updated", "Interactions", "Scanned", "Analyzed"}}
			for _, s := range list {
				rows = append(rows, []string{
					s.TabID,
					orDash(s.URL),
					s.LastUpdated.Local().Format(time.RFC3339),
					pterm.Sprint(len(s.UserInteractions)),
					yesNo(s.ScanData != nil),
					yesNo(len(s.AIAnalysis) > 0),
				})
			}
			return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
		})
	},
}

var sessionsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove sessions older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDeps(cmd.Context(), func(ctx context.Context, d *deps) error {
			removed, err := d.sessions.Cleanup(ctx)
			if err != nil {
				return err
			}
			pterm.Success.Printfln("Removed %d session(s) older than %s", removed, d.sessions.Retention())
			return nil
		})
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd, sessionsPruneCmd)
}

func withDeps(ctx context.Context, fn func(context.Context, *deps) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	d, err := openDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.Close()
	return fn(ctx, d)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
