package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/detox/internal/api"
	"github.com/eliteGoblin/focusd/detox/internal/domain"
	"github.com/eliteGoblin/focusd/detox/internal/selector"
	"github.com/eliteGoblin/focusd/detox/internal/usecase"
)

func sessionCommands() []*cobra.Command {
	var minutes string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start a detox session",
		Long: `Starts a detox session. --minutes accepts typed input such as "45" or
"90 min" and is clamped to the daemon's maximum (180 by default). Without it
the duration currently set on the selector is used. The session cannot be
stopped except by an emergency unlock, a premium unlock, or cancel.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			length := 0
			if minutes != "" {
				st, err := client.Status(cmd.Context())
				if err != nil {
					return explain(err)
				}
				maxMinutes := st.MaxMinutes
				if maxMinutes <= 0 {
					maxMinutes = selector.DefaultMaxMinutes
				}
				if length, err = selector.ParseMinutes(maxMinutes, minutes); err != nil {
					return explain(fmt.Errorf("duration %q: %w", minutes, err))
				}
			}
			sess, err := client.Start(cmd.Context(), length)
			if err != nil {
				return explain(err)
			}
			if jsonOutput {
				return printJSON(sess)
			}
			fmt.Printf("Detox started for %d minutes (session %s)\n", sess.PlannedMinutes(), sess.ID)
			return nil
		},
	}
	startCmd.Flags().StringVarP(&minutes, "minutes", "m", "", "Session length in minutes (default: the selector's value)")

	var premium bool
	unlockCmd := &cobra.Command{
		Use:   "unlock",
		Short: "End the session with an emergency unlock",
		Long: `Ends the active session early. Uses one emergency unlock from the budget,
or with --premium the purchased premium unlock, which uses no budget.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			res, err := client.Unlock(cmd.Context(), premium)
			if err != nil {
				return explain(err)
			}
			return printStop(res)
		},
	}
	unlockCmd.Flags().BoolVar(&premium, "premium", false, "Use the premium unlock")

	cancelCmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the active session",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			res, err := client.Cancel(cmd.Context())
			if err != nil {
				return explain(err)
			}
			return printStop(res)
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the session state",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			st, err := client.Status(cmd.Context())
			if err != nil {
				fmt.Println("Status: NOT RUNNING")
				fmt.Println("\nRun 'detoxd launch' to start the daemon.")
				return err
			}
			if jsonOutput {
				return printJSON(st)
			}
			printStatus(st)
			return nil
		},
	}

	var summaryOnly bool
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List finished sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			sum, err := client.Summary(cmd.Context())
			if err != nil {
				return explain(err)
			}
			if summaryOnly {
				if jsonOutput {
					return printJSON(sum)
				}
				printSummary(sum.Sessions, sum.TotalMinutes, sum.ByOutcome)
				return nil
			}
			records, err := client.History(cmd.Context())
			if err != nil {
				return explain(err)
			}
			if jsonOutput {
				return printJSON(records)
			}
			fmt.Println("\n=== Detox History ===")
			for _, r := range records {
				outcome := string(r.Outcome)
				if outcome == "" {
					outcome = "-"
				}
				fmt.Printf("  %s  %4d min  %s\n", r.Timestamp.Local().Format("2006-01-02 15:04"), r.DurationMinutes, outcome)
			}
			printSummary(sum.Sessions, sum.TotalMinutes, sum.ByOutcome)
			return nil
		},
	}
	historyCmd.Flags().BoolVar(&summaryOnly, "summary", false, "Only print totals")

	return []*cobra.Command{startCmd, unlockCmd, cancelCmd, statusCmd, historyCmd}
}

func whitelistCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whitelist",
		Short: "Manage apps allowed during a session",
		Long:  `Whitelisted apps stay usable during a session. Changes are refused while a session is active.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List whitelisted apps",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			apps, err := client.Whitelist(cmd.Context())
			if err != nil {
				return explain(err)
			}
			if jsonOutput {
				return printJSON(apps)
			}
			fmt.Println("\n=== Whitelisted Apps ===")
			for _, a := range apps {
				fmt.Printf("  - %s\n", a)
			}
			return nil
		},
	}, &cobra.Command{
		Use:   "add APP...",
		Short: "Allow apps during sessions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			for _, app := range args {
				added, err := client.AddWhitelisted(cmd.Context(), app)
				if err != nil {
					return explain(err)
				}
				if added {
					fmt.Printf("Added %s\n", app)
				} else {
					fmt.Printf("%s is already whitelisted\n", app)
				}
			}
			return nil
		},
	}, &cobra.Command{
		Use:   "remove APP...",
		Short: "Stop allowing apps during sessions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			for _, app := range args {
				removed, err := client.RemoveWhitelisted(cmd.Context(), app)
				if err != nil {
					return explain(err)
				}
				if removed {
					fmt.Printf("Removed %s\n", app)
				} else {
					fmt.Printf("%s was not whitelisted\n", app)
				}
			}
			return nil
		},
	})
	return cmd
}

func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Show or change the daily detox window",
		Long: `A schedule starts a session automatically when the daily window opens,
lasting until the window closes. END before START spans midnight; START equal
to END means all day.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			win, err := client.Schedule(cmd.Context())
			if err != nil {
				return explain(err)
			}
			return printSchedule(win)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set START END",
		Short: "Enable the window START-END (HH:MM, local time)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			win, err := client.SetSchedule(cmd.Context(), api.ScheduleRequest{Enabled: true, Start: args[0], End: args[1]})
			if err != nil {
				return explain(err)
			}
			return printSchedule(win)
		},
	}, &cobra.Command{
		Use:   "off",
		Short: "Disable the schedule, keeping the window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			cur, err := client.Schedule(cmd.Context())
			if err != nil {
				return explain(err)
			}
			win, err := client.SetSchedule(cmd.Context(), api.ScheduleRequest{Enabled: false, Start: cur.Start, End: cur.End})
			if err != nil {
				return explain(err)
			}
			return printSchedule(win)
		},
	})
	return cmd
}

func purchaseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purchase",
		Short: "Premium unlock purchase flow",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "request",
		Short: "Open the purchase flow",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			if err := client.RequestPurchase(cmd.Context()); err != nil {
				return explain(err)
			}
			fmt.Println("Purchase flow requested")
			return nil
		},
	}, &cobra.Command{
		Use:   "complete",
		Short: "Record a completed purchase",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			st, err := client.CompletePurchase(cmd.Context())
			if err != nil {
				return explain(err)
			}
			fmt.Printf("Premium unlock: %t\n", st.Premium)
			return nil
		},
	})
	return cmd
}

var noticeLimit int

var noticesCmd = &cobra.Command{
	Use:   "notices",
	Short: "Show recent notices from the daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		notices, err := client.Notices(cmd.Context(), noticeLimit)
		if err != nil {
			return explain(err)
		}
		if jsonOutput {
			return printJSON(notices)
		}
		for _, n := range notices {
			fmt.Printf("%s  %-20s %s\n", n.At.Local().Format("15:04:05"), n.Kind, n.Message)
		}
		return nil
	},
}

func init() {
	noticesCmd.Flags().IntVarP(&noticeLimit, "limit", "n", 20, "Number of notices to show")
}

// explain adds a hint to errors the user can act on.
func explain(err error) error {
	switch {
	case errors.Is(err, domain.ErrCancelDenied):
		return fmt.Errorf("%w\n  cancelling costs an emergency unlock and none are left", err)
	case errors.Is(err, domain.ErrBudgetExhausted):
		return fmt.Errorf("%w\n  the budget refills at midnight; 'detoxd purchase request' unlocks premium", err)
	case errors.Is(err, domain.ErrNotPremium):
		return fmt.Errorf("%w\n  run 'detoxd purchase request' first", err)
	case errors.Is(err, domain.ErrInvalidDuration):
		return fmt.Errorf("%w\n  give a number of minutes, e.g. 'detoxd start -m 45'", err)
	case errors.Is(err, domain.ErrSessionActive):
		return fmt.Errorf("%w\n  wait for the session to end or unlock it", err)
	case errors.Is(err, domain.ErrCapabilityMissing):
		return fmt.Errorf("%w\n  check monitor.foreground_command and monitor.lock_command in config.yaml", err)
	}
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%w\n  is the daemon running? try 'detoxd launch'", err)
	}
	return err
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printStop(res usecase.StopResult) error {
	if jsonOutput {
		return printJSON(res)
	}
	if res.NoOp {
		fmt.Println("No active session")
		return nil
	}
	fmt.Printf("Session ended (%s). Emergency unlocks left: %d\n", res.Outcome, res.BudgetRemaining)
	return nil
}

func printStatus(st usecase.Status) {
	fmt.Println("\n=== detoxd Status ===")
	switch {
	case st.Session != nil && st.Session.Paused:
		fmt.Printf("Session: ACTIVE (paused), %d min left\n", st.RemainingMinutes)
	case st.Session != nil:
		fmt.Printf("Session: ACTIVE, %d min left of %d\n", st.RemainingMinutes, st.Session.PlannedMinutes())
	default:
		fmt.Println("Session: inactive")
	}
	if st.MonitoringDegraded {
		fmt.Println("Monitoring: DEGRADED")
	}
	fmt.Printf("Emergency unlocks: %d/%d\n", st.EmergencyUnlocks, st.EmergencyUnlockMax)
	fmt.Printf("Premium unlock: %t\n", st.Premium)
	sched := "off"
	if st.Schedule.Enabled {
		sched = st.Schedule.String()
	}
	fmt.Printf("Schedule: %s\n", sched)
	fmt.Printf("Whitelist: %s\n", strings.Join(st.Whitelist, ", "))
	fmt.Printf("Sessions recorded: %d\n", st.HistoryLen)
	fmt.Println("=====================")
}

func printSchedule(win api.ScheduleResponse) error {
	if jsonOutput {
		return printJSON(win)
	}
	state := "disabled"
	if win.Enabled {
		state = "enabled"
	}
	fmt.Printf("Schedule %s-%s (%s)\n", win.Start, win.End, state)
	return nil
}

func printSummary(sessions, minutes int, byOutcome map[domain.Outcome]int) {
	fmt.Printf("\nSessions: %d, total %d min\n", sessions, minutes)
	keys := make([]string, 0, len(byOutcome))
	for k := range byOutcome {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %-10s %d\n", k, byOutcome[domain.Outcome(k)])
	}
}
