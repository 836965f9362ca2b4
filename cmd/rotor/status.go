package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"spiralcodex/rotor/pkg/engine"
)

var statusFlags struct {
	recent int
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show provider statuses and usage",
	Long: `Show every configured provider's status, request and token
consumption against its budgets, and which provider the next request
would use.

Examples:
  # Provider table
  rotor status

  # Include the last 20 journaled requests
  rotor status --recent 20`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().IntVar(&statusFlags.recent, "recent", 0, "also show the N most recent requests")
}

func runStatus(cmd *cobra.Command, args []string) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	report := eng.Status()
	if len(report) == 0 {
		fmt.Println("No providers configured. Configure one with 'rotor keys set <provider>'.")
		return nil
	}

	current, _ := eng.Current()

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tSTATUS\tREQUESTS\tTOKENS\tWINDOW RESET")
	for _, u := range report {
		marker := ""
		if u.ID == current {
			marker = " *"
		}
		fmt.Fprintf(w, "%s%s\t%s\t%s\t%s\t%s\n",
			u.ID, marker,
			u.Status,
			formatBudget(u.Counters.Requests, u.Limits.Requests),
			formatBudget(u.Counters.TotalTokens, u.Limits.Tokens),
			u.Counters.WindowStart.Add(time.Hour).Format(time.Kitchen),
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if statusFlags.recent > 0 {
		if err := printRecent(cmd, eng); err != nil {
			return err
		}
	}
	return nil
}

func formatBudget(used, limit int) string {
	if limit <= 0 {
		return fmt.Sprintf("%d", used)
	}
	return fmt.Sprintf("%d/%d", used, limit)
}

func printRecent(cmd *cobra.Command, eng *engine.Engine) error {
	entries, err := eng.Recent(cmd.Context(), statusFlags.recent)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tPROVIDER\tMODEL\tTOKENS\tLATENCY\tERROR")
	for _, e := range entries {
		errKind := e.ErrorKind
		if errKind == "" {
			errKind = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%dms\t%s\n",
			e.CreatedAt.Format(time.TimeOnly),
			e.Provider, e.Model, e.TotalTokens, e.LatencyMS, errKind,
		)
	}
	return w.Flush()
}
