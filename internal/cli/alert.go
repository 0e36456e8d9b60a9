package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/pushsync/internal/ir"
	"github.com/roach88/pushsync/internal/session"
)

// AlertOptions holds flags for the alert command.
type AlertOptions struct {
	*RootOptions
	Conversation string
	Timeout      time.Duration
}

// AlertResult is the outcome of an alert run. Summary is nil when the
// event produced no alert.
type AlertResult struct {
	EventID string      `json:"event_id"`
	Alert   bool        `json:"alert"`
	Summary *ir.Summary `json:"summary,omitempty"`
}

// NewAlertCommand creates the alert command.
func NewAlertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AlertOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "alert <event-id>",
		Short: "Build the alert for one notification event",
		Long: `Fetch a single notification event, decrypt it and render the alert
a push notification would show. Names are looked up in the local store;
nothing is written.

Events sent by the configured user, events that cannot be fetched or
decrypted, and unknown events produce no alert.

Examples:
  pushsync alert 0190ab12-3456-7def-8123-456789abcdef
  pushsync alert 0190ab12-3456-7def-8123-456789abcdef --conversation c1 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAlert(opts, ir.EventID(args[0]), cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Conversation, "conversation", "", "conversation the push payload names")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "give up after this long (0 for no limit)")

	return cmd
}

func runAlert(opts *AlertOptions, eventID ir.EventID, cmd *cobra.Command) error {
	if eventID.IsZero() {
		return NewExitError(ExitCommandError, "event id is empty")
	}
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}

	a, err := session.NewAlert(cfg, eventID, session.WithConversationHint(opts.Conversation))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open alert session", err)
	}

	ctx, cancel := signalContext(cmd, opts.Timeout)
	defer cancel()

	a.Start(ctx)
	summary, waitErr := a.Wait(ctx)
	if disposeErr := a.Dispose(); disposeErr != nil {
		slog.Error("error closing alert session", "error", disposeErr)
	}

	result := AlertResult{EventID: eventID.String()}
	switch {
	case errors.Is(waitErr, session.ErrNoAlert):
	case waitErr != nil:
		return WrapExitError(ExitFailure, "alert not built", waitErr)
	default:
		result.Alert = true
		result.Summary = &summary
	}

	out := newFormatter(opts.RootOptions, cmd)
	if opts.Format == "json" {
		return out.JSON(CLIResponse{Status: "ok", Data: result})
	}
	if !result.Alert {
		fmt.Fprintf(out.Writer, "No alert for event %s\n", result.EventID)
		return nil
	}
	fmt.Fprintf(out.Writer, "Title: %s\n", summary.Title)
	fmt.Fprintf(out.Writer, "Body: %s\n", summary.Body)
	fmt.Fprintf(out.Writer, "Category: %s\n", summary.Category)
	if summary.ThreadID != "" {
		out.VerboseLog("Thread: %s", summary.ThreadID)
	}
	return nil
}
