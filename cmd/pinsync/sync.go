package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pinsync/pinsync/internal/daemon"
	"github.com/pinsync/pinsync/internal/dashboard"
	"github.com/pinsync/pinsync/internal/logging"
	"github.com/pinsync/pinsync/internal/remote"
	"github.com/pinsync/pinsync/internal/schema"
	pinsync "github.com/pinsync/pinsync/internal/sync"
	"github.com/pinsync/pinsync/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Run one sync pass now",
	Long: `Run one pull-then-push pass against the backend.

When a daemon is running the pass is handed to it and this command returns
immediately. Otherwise the pass runs in this process and its report is
printed.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		if c := daemonClient(ctx); c != nil {
			if err := c.Trigger(ctx); err != nil {
				fatal("triggering sync: %v", err)
			}
			fmt.Printf("%s Sync requested from daemon at %s\n", ui.RenderAccent("→"), cfg.Control.Addr())
			return
		}

		s := openStore(ctx)
		defer s.Close()
		sink := commandSink()
		defer sink.Close()

		st, err := newStack(ctx, s, sink, nil)
		if err != nil {
			fatal("%v", err)
		}

		fmt.Printf("%s Syncing with %s...\n", ui.RenderAccent("🔄"), cfg.APIURL)
		err = st.service.Sync(ctx)
		report := st.engine.LastReport()

		if jsonOutput {
			printJSON(passSummary(report, err))
			if err != nil {
				os.Exit(1)
			}
			return
		}

		switch {
		case errors.Is(err, pinsync.ErrSyncDisabled):
			fmt.Printf("%s Sync is disabled. Run 'pinsync enable' first.\n", ui.RenderWarn("⚠"))
			os.Exit(1)
		case errors.Is(err, pinsync.ErrOffline):
			fmt.Printf("%s Backend unreachable, nothing was synced.\n", ui.RenderWarn("⚠"))
			os.Exit(1)
		case remote.IsAuth(err):
			fmt.Printf("%s Not signed in. Run 'pinsync token login' first.\n", ui.RenderWarn("⚠"))
			os.Exit(1)
		}

		if report == nil && err == nil {
			fmt.Printf("%s Another pinsync process is already syncing\n", ui.RenderWarn("⚠"))
			return
		}
		if report != nil {
			printReport(report)
		}
		if err != nil {
			fmt.Printf("%s Sync finished with errors: %v\n", ui.RenderFail("✗"), err)
			os.Exit(1)
		}
		fmt.Printf("%s Sync complete\n", ui.RenderPass("✓"))
	},
}

type passJSON struct {
	Pulled   int      `json:"pulled"`
	Pushed   int      `json:"pushed"`
	Skipped  int      `json:"skipped"`
	Failed   int      `json:"failed"`
	Duration string   `json:"duration,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

func passSummary(r *pinsync.Report, err error) passJSON {
	var out passJSON
	if r != nil {
		out.Pulled = len(r.Pulled)
		out.Pushed = len(r.Pushed)
		out.Skipped = len(r.Skipped)
		out.Failed = len(r.Failed)
		out.Duration = r.Duration().Round(time.Millisecond).String()
	}
	if err != nil {
		out.Errors = append(out.Errors, err.Error())
	}
	return out
}

func printReport(r *pinsync.Report) {
	rows := []struct {
		label string
		phase pinsync.Phase
		list  []pinsync.Outcome
	}{
		{"Pulled", pinsync.PhasePull, r.Pulled},
		{"Pushed", pinsync.PhasePush, r.Pushed},
	}
	for _, row := range rows {
		fmt.Println(ui.RenderField(row.label, fmt.Sprintf("%s, %s",
			ui.Plural(pinsync.Count(row.list, row.phase, pinsync.KindCollection), "collection"),
			ui.Plural(pinsync.Count(row.list, row.phase, pinsync.KindPin), "pin"))))
	}
	if len(r.Skipped) > 0 {
		fmt.Println(ui.RenderField("Skipped", ui.Plural(len(r.Skipped), "record")))
		for _, o := range r.Skipped {
			fmt.Printf("  %s %s\n", ui.RenderMuted("-"), o)
		}
	}
	if len(r.Failed) > 0 {
		fmt.Println(ui.RenderField("Failed", ui.RenderFail(ui.Plural(len(r.Failed), "record"))))
		for _, o := range r.Failed {
			fmt.Printf("  %s %s\n", ui.RenderFail("✗"), o)
		}
	}
	fmt.Println(ui.RenderField("Took", r.Duration().Round(time.Millisecond).String()))
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show sync status and settings",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		var (
			status   schema.SyncStatus
			settings schema.SyncSettings
			source   = "database"
		)
		s := openStore(ctx)
		defer s.Close()

		counts, err := s.Counts(ctx)
		if err != nil {
			fatal("%v", err)
		}
		if c := daemonClient(ctx); c != nil {
			if status, err = c.Status(ctx); err != nil {
				fatal("%v", err)
			}
			source = "daemon " + cfg.Control.Addr()
		} else if status, err = s.LoadStatus(ctx); err != nil {
			fatal("%v", err)
		}
		if settings, err = s.LoadSettings(ctx); err != nil {
			fatal("%v", err)
		}

		if jsonOutput {
			printJSON(map[string]any{
				"state":    daemon.StateOf(status).String(),
				"status":   status,
				"settings": settings,
				"counts":   counts,
				"source":   source,
			})
			return
		}

		fmt.Printf("\n%s Sync Status\n\n", ui.RenderAccent("📊"))
		fmt.Println(ui.RenderField("State", renderState(status)))
		fmt.Println(ui.RenderField("Enabled", onOff(settings.Enabled)))
		fmt.Println(ui.RenderField("Auto-sync", fmt.Sprintf("%s every %s", onOff(settings.AutoSync), ui.Plural(settings.SyncInterval, "minute"))))
		var last time.Time
		if status.LastSyncTime != nil {
			last = *status.LastSyncTime
		}
		fmt.Println(ui.RenderField("Last sync", ui.RelativeTime(last, time.Now())))
		if msg := status.ErrorMessage(); msg != "" {
			fmt.Println(ui.RenderField("Last error", ui.RenderFail(msg)))
		}
		fmt.Println(ui.RenderField("Collections", fmt.Sprint(counts.Collections)))
		fmt.Println(ui.RenderField("Pins", fmt.Sprintf("%d (%d unassigned, not synced)", counts.Pins, counts.Unassigned)))
		fmt.Println(ui.RenderField("Source", ui.RenderMuted(source)))
		fmt.Println()
	},
}

func renderState(st schema.SyncStatus) string {
	state := daemon.StateOf(st)
	switch state {
	case daemon.StateSyncing:
		return ui.RenderAccent(state.String())
	case daemon.StateError:
		return ui.RenderFail(state.String())
	default:
		return ui.RenderPass(state.String())
	}
}

func onOff(b bool) string {
	if b {
		return ui.RenderPass("on")
	}
	return ui.RenderMuted("off")
}

var enableCmd = &cobra.Command{
	Use:     "enable",
	GroupID: "sync",
	Short:   "Turn sync on and run a first pass",
	Run: func(cmd *cobra.Command, args []string) {
		setEnabled(cmd.Context(), true)
	},
}

var disableCmd = &cobra.Command{
	Use:     "disable",
	GroupID: "sync",
	Short:   "Turn sync off",
	Run: func(cmd *cobra.Command, args []string) {
		setEnabled(cmd.Context(), false)
	},
}

func setEnabled(ctx context.Context, on bool) {
	word := map[bool]string{true: "enabled", false: "disabled"}[on]

	if c := daemonClient(ctx); c != nil {
		var err error
		if on {
			_, err = c.Enable(ctx)
		} else {
			_, err = c.Disable(ctx)
		}
		if err != nil {
			fatal("%v", err)
		}
		fmt.Printf("%s Sync %s (daemon)\n", ui.RenderPass("✓"), word)
		return
	}

	s := openStore(ctx)
	defer s.Close()
	sink := commandSink()
	defer sink.Close()

	st, err := newStack(ctx, s, sink, nil)
	if err != nil {
		fatal("%v", err)
	}
	if on {
		err = st.service.Enable(ctx)
		st.service.Wait()
	} else {
		err = st.service.Disable(ctx)
	}
	if err != nil {
		fatal("%v", err)
	}
	fmt.Printf("%s Sync %s\n", ui.RenderPass("✓"), word)
	if on {
		if msg := st.service.Status().ErrorMessage(); msg != "" {
			fmt.Printf("%s First pass failed: %s\n", ui.RenderWarn("⚠"), msg)
		} else if r := st.engine.LastReport(); r != nil {
			fmt.Printf("   First pass: %s\n", r)
		}
	}
}

var settingsCmd = &cobra.Command{
	Use:     "settings",
	GroupID: "sync",
	Short:   "Show or change sync settings",
	Long: `Show the sync settings, or change them with flags:

  pinsync settings --auto-sync=false
  pinsync settings --interval 30
  pinsync settings --wifi-only`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		s := openStore(ctx)
		defer s.Close()

		settings, err := s.LoadSettings(ctx)
		if err != nil {
			fatal("%v", err)
		}

		changed := false
		if cmd.Flags().Changed("auto-sync") {
			settings.AutoSync, _ = cmd.Flags().GetBool("auto-sync")
			changed = true
		}
		if cmd.Flags().Changed("interval") {
			settings.SyncInterval, _ = cmd.Flags().GetInt("interval")
			changed = true
		}
		if cmd.Flags().Changed("wifi-only") {
			settings.WifiOnly, _ = cmd.Flags().GetBool("wifi-only")
			changed = true
		}
		if changed {
			if err := s.SaveSettings(ctx, settings); err != nil {
				fatal("%v", err)
			}
			if daemonClient(ctx) != nil {
				fmt.Printf("%s Restart the daemon to apply the new settings\n", ui.RenderWarn("⚠"))
			}
		}

		if jsonOutput {
			printJSON(settings)
			return
		}
		fmt.Println(ui.RenderField("Enabled", onOff(settings.Enabled)))
		fmt.Println(ui.RenderField("Auto-sync", onOff(settings.AutoSync)))
		fmt.Println(ui.RenderField("Interval", ui.Plural(settings.SyncInterval, "minute")))
		fmt.Println(ui.RenderField("Wi-Fi only", onOff(settings.WifiOnly)))
	},
}

var watchCmd = &cobra.Command{
	Use:     "watch",
	GroupID: "sync",
	Short:   "Stream status changes from the running daemon",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		c := dashboard.NewClient(cfg.Control.Addr())
		err := c.Watch(ctx, func(st schema.SyncStatus) {
			if jsonOutput {
				printJSON(st)
				return
			}
			line := fmt.Sprintf("%s %s", time.Now().Format("15:04:05"), renderState(st))
			if msg := st.ErrorMessage(); msg != "" {
				line += " " + ui.RenderFail(msg)
			}
			fmt.Println(line)
		})
		if err != nil {
			fatal("%v", err)
		}
	},
}

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the background sync daemon (foreground)",
	Long: `Run the sync daemon in the foreground.

The daemon:
  1. Keeps the access token fresh from the stored credentials
  2. Runs a sync pass every sync interval while auto-sync is on
  3. Serves control messages and status updates on the control port
  4. Exposes /health and /metrics for monitoring`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		sink, err := logging.Open(cfg.Log)
		if err != nil {
			fatal("opening log: %v", err)
		}
		defer sink.Close()

		s := openStore(ctx)
		defer s.Close()

		metrics := dashboard.NewMetrics()
		st, err := newStack(ctx, s, sink, metrics)
		if err != nil {
			fatal("%v", err)
		}

		srv, err := dashboard.NewServer(&dashboard.Config{
			Host:       cfg.Control.Host,
			Port:       cfg.Control.Port,
			Controller: st.service,
			Metrics:    metrics,
			Logger:     sink.Logger("dashboard"),
		})
		if err != nil {
			fatal("%v", err)
		}

		d, err := daemon.New(&daemon.Config{
			Service:         st.service,
			Provider:        st.provider,
			CredentialsPath: cfg.CredentialsPath,
			RefreshInterval: cfg.Token.RefreshInterval,
			Server:          srv,
			Logger:          sink.Logger("daemon"),
		})
		if err != nil {
			fatal("%v", err)
		}

		fmt.Printf("%s Starting pinsync daemon...\n", ui.RenderAccent("🚀"))
		fmt.Printf("   Database: %s\n", cfg.DBPath)
		fmt.Printf("   Backend:  %s\n", cfg.APIURL)
		fmt.Printf("   Control:  http://%s\n", cfg.Control.Addr())
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		if err := d.Run(ctx); err != nil {
			fatal("daemon stopped: %v", err)
		}
		fmt.Println("Daemon stopped")
	},
}

func init() {
	settingsCmd.Flags().Bool("auto-sync", true, "Sync periodically while enabled")
	settingsCmd.Flags().Int("interval", schema.DefaultSyncInterval, "Auto-sync interval in minutes")
	settingsCmd.Flags().Bool("wifi-only", false, "Only sync on Wi-Fi (recorded, not enforced)")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(enableCmd)
	rootCmd.AddCommand(disableCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(daemonCmd)
}
