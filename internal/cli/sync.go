package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/pushsync/internal/ir"
	"github.com/roach88/pushsync/internal/session"
	"github.com/roach88/pushsync/internal/stream"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	Timeout time.Duration
}

// SyncResult is the outcome of one sync run.
type SyncResult struct {
	AccountID  string `json:"account_id"`
	CaughtUp   bool   `json:"caught_up"`
	Checkpoint string `json:"checkpoint,omitempty"`
	Batches    int64  `json:"batches"`
	Events     int64  `json:"events"`
	Failures   int64  `json:"failures"`
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull pending notifications into the local store",
		Long: `Pull the notification stream from the stored checkpoint until the
server reports no further events, applying each event to the local store.

The run stops when the stream is caught up, a page fetch fails, the
timeout expires, or the process is interrupted. Events applied before
stopping stay committed and the checkpoint reflects them.

Exit codes:
  0 - Caught up
  1 - A fetch failed or the timeout expired
  2 - Command error (bad config, store cannot be opened)

Examples:
  pushsync sync --config ./pushsync.yaml
  pushsync sync --timeout 25s --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "give up after this long (0 for no limit)")

	return cmd
}

// syncCounter counts pipeline progress for the run summary.
type syncCounter struct {
	batches  atomic.Int64
	events   atomic.Int64
	failures atomic.Int64
}

func (c *syncCounter) OnBatchFetched(b ir.EventBatch) {
	c.batches.Add(1)
	c.events.Add(int64(b.Len()))
}

func (c *syncCounter) OnEventFailed(ir.EventFailure) {
	c.failures.Add(1)
}

func runSync(opts *SyncOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}

	counter := &syncCounter{}
	s, err := session.NewSave(cfg,
		session.WithBatchListener(counter),
		session.WithEventFailureListener(counter),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open sync session", err)
	}

	ctx, cancel := signalContext(cmd, opts.Timeout)
	defer cancel()

	s.Start(ctx)
	waitErr := s.WaitCaughtUp(ctx)

	last, ok, cpErr := s.Checkpoint()
	if disposeErr := s.Dispose(); disposeErr != nil {
		slog.Error("error closing sync session", "error", disposeErr)
	}
	if cpErr != nil {
		return WrapExitError(ExitCommandError, "failed to read checkpoint", cpErr)
	}

	result := SyncResult{
		AccountID: cfg.AccountID,
		CaughtUp:  waitErr == nil,
		Batches:   counter.batches.Load(),
		Events:    counter.events.Load(),
		Failures:  counter.failures.Load(),
	}
	if ok {
		result.Checkpoint = last.String()
	}

	out := newFormatter(opts.RootOptions, cmd)
	if waitErr != nil {
		return syncFailed(out, result, waitErr)
	}
	if opts.Format == "json" {
		return out.JSON(CLIResponse{Status: "ok", Data: result})
	}
	fmt.Fprintf(out.Writer, "Caught up: %d batch(es), %d event(s), %d failed\n",
		result.Batches, result.Events, result.Failures)
	if result.Checkpoint != "" {
		fmt.Fprintf(out.Writer, "Checkpoint: %s\n", result.Checkpoint)
	}
	return nil
}

func syncFailed(out *OutputFormatter, result SyncResult, err error) error {
	message := "sync did not catch up"
	var fe *stream.FetchError
	switch {
	case errors.As(err, &fe) && fe.StatusCode != 0:
		message = fmt.Sprintf("page fetch failed (status %d)", fe.StatusCode)
	case errors.As(err, &fe):
		message = "page fetch failed"
	case errors.Is(err, context.DeadlineExceeded):
		message = "sync timed out"
	case errors.Is(err, context.Canceled):
		message = "sync interrupted"
	}

	if out.Format == "json" {
		if encErr := out.JSON(CLIResponse{
			Status: "error",
			Data:   result,
			Error:  &CLIError{Code: ErrCodeFetch, Message: message, Details: err.Error()},
		}); encErr != nil {
			return encErr
		}
	} else {
		fmt.Fprintf(out.Writer, "Stopped: %s, %d batch(es), %d event(s), %d failed\n",
			message, result.Batches, result.Events, result.Failures)
	}
	return WrapExitError(ExitFailure, message, err)
}

// signalContext returns a context cancelled on SIGINT/SIGTERM and, when
// timeout is positive, after timeout.
func signalContext(cmd *cobra.Command, timeout time.Duration) (context.Context, context.CancelFunc) {
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, timeout)
		inner := cancel
		cancel = func() {
			cancelTimeout()
			inner()
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
