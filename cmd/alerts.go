package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/kozaktomas/reunite/internal/alerting"
	"github.com/spf13/cobra"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Inspect and act on alerts",
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a handler's alerts, newest first",
	Args:  cobra.NoArgs,
	RunE:  runAlertsList,
}

var alertsActCmd = &cobra.Command{
	Use:   "act <alert-id> <mark_reviewed|dismiss>",
	Short: "Mark an alert as reviewed or dismiss it",
	Args:  cobra.ExactArgs(2),
	RunE:  runAlertsAct,
}

var alertsRedispatchCmd = &cobra.Command{
	Use:   "redispatch",
	Short: "Deliver alerts that were admitted but never sent",
	Long: `Queue every undispatched alert, oldest first, and wait until delivery
finishes. Alerts that fail again stay undispatched and can be retried later.`,
	Args: cobra.NoArgs,
	RunE: runAlertsRedispatch,
}

func init() {
	rootCmd.AddCommand(alertsCmd)
	alertsCmd.AddCommand(alertsListCmd, alertsActCmd, alertsRedispatchCmd)

	alertsListCmd.Flags().String("handler", "", "Handler e-mail (required)")
	alertsListCmd.Flags().Int("limit", 50, "Maximum number of alerts")
	alertsListCmd.Flags().Bool("json", false, "Output as JSON")
	_ = alertsListCmd.MarkFlagRequired("handler")

	alertsActCmd.Flags().String("handler", "", "Handler e-mail (required)")
	_ = alertsActCmd.MarkFlagRequired("handler")

	alertsRedispatchCmd.Flags().Int("limit", redispatchLimit, "Maximum number of alerts to queue")
	alertsRedispatchCmd.Flags().Duration("timeout", 5*time.Minute, "How long to wait for delivery")
}

// alertRow is the JSON shape of an alert in command output.
type alertRow struct {
	ID           int64      `json:"id"`
	CaseID       string     `json:"case_id"`
	Name         string     `json:"name"`
	Similarity   float64    `json:"similarity"`
	SentAt       time.Time  `json:"sent_at"`
	Reviewed     bool       `json:"reviewed"`
	DispatchedAt *time.Time `json:"dispatched_at,omitempty"`
}

func runAlertsList(cmd *cobra.Command, args []string) error {
	handler, err := parseEmail("handler", mustGetString(cmd, "handler"), true)
	if err != nil {
		return err
	}

	cfg := loadConfig(cmd)
	ctx := context.Background()
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	service := alerting.NewService(store, store, store)
	list, unread, err := service.ListForHandler(ctx, handler, mustGetInt(cmd, "limit"))
	if err != nil {
		return err
	}

	rows := make([]alertRow, 0, len(list))
	for _, n := range list {
		rows = append(rows, alertRow{
			ID:           n.ID,
			CaseID:       n.CaseID,
			Name:         n.Name,
			Similarity:   n.Similarity,
			SentAt:       n.SentAt,
			Reviewed:     n.Reviewed,
			DispatchedAt: n.DispatchedAt,
		})
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(struct {
			Alerts []alertRow `json:"alerts"`
			Unread int        `json:"unread"`
		}{rows, unread})
	}
	if len(rows) == 0 {
		fmt.Printf("No alerts for %s\n", handler)
		return nil
	}
	w := newTable()
	fmt.Fprintln(w, "ID\tCASE\tNAME\tSIMILARITY\tSENT\tSTATE")
	for _, r := range rows {
		state := "unread"
		if r.Reviewed {
			state = "reviewed"
		}
		if r.DispatchedAt == nil {
			state += ", undelivered"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%.3f\t%s\t%s\n",
			r.ID, r.CaseID, r.Name, r.Similarity, r.SentAt.Local().Format(time.DateTime), state)
	}
	w.Flush()
	fmt.Printf("\n%d unread\n", unread)
	return nil
}

func runAlertsAct(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid alert ID %q", args[0])
	}
	action, err := alerting.ParseAction(args[1])
	if err != nil {
		return err
	}
	handler, err := parseEmail("handler", mustGetString(cmd, "handler"), true)
	if err != nil {
		return err
	}

	cfg := loadConfig(cmd)
	ctx := context.Background()
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := alerting.NewService(store, store, store).Act(ctx, handler, id, action); err != nil {
		return err
	}
	fmt.Printf("Alert %d: %s\n", id, action)
	return nil
}

func runAlertsRedispatch(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)
	ctx := context.Background()
	a, err := newApp(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	a.queue.Start(ctx)
	n, err := a.pipeline.Redispatch(ctx, mustGetInt(cmd, "limit"))
	if stopErr := a.queue.Stop(mustGetDuration(cmd, "timeout")); stopErr != nil {
		a.log.Warn("delivery did not finish", "error", stopErr)
	}
	if err != nil {
		return err
	}

	left, err := a.store.ListUndispatched(ctx, mustGetInt(cmd, "limit"))
	if err != nil {
		return fmt.Errorf("list undispatched alerts: %w", err)
	}
	fmt.Printf("Queued %d alerts, %d still undispatched\n", n, len(left))
	return nil
}
