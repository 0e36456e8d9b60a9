package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/pushsync/internal/checkpoint"
	"github.com/roach88/pushsync/internal/config"
)

// CheckpointEntry is one account's stored checkpoint.
type CheckpointEntry struct {
	AccountID string `json:"account_id"`
	EventID   string `json:"event_id,omitempty"`
	Stored    bool   `json:"stored"`
}

// NewCheckpointCommand creates the checkpoint command group.
func NewCheckpointCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect or reset the stored resume point",
		Long: `Inspect or reset the checkpoint: the ID of the last event the sync
pipeline finished with. The next sync fetches everything after it.

Examples:
  pushsync checkpoint show
  pushsync checkpoint list --format json
  pushsync checkpoint reset`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "show",
		Short:         "Show the configured account's checkpoint",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheckpointShow(rootOpts, cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "list",
		Short:         "List the checkpoints of every account in the data directory",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheckpointList(rootOpts, cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Delete the configured account's checkpoint",
		Long: `Delete the configured account's checkpoint. The next sync starts from
the oldest event the server still has. Stored state is kept; replaying
events over it is idempotent.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheckpointReset(rootOpts, cmd)
		},
	})

	return cmd
}

func openCheckpoints(opts *RootOptions) (config.Config, *checkpoint.Store, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return config.Config{}, nil, err
	}
	cps, err := checkpoint.Open(checkpoint.Options{Dir: cfg.CheckpointDir()})
	if err != nil {
		return config.Config{}, nil, WrapExitError(ExitCommandError, "failed to open checkpoint store", err)
	}
	return cfg, cps, nil
}

func runCheckpointShow(opts *RootOptions, cmd *cobra.Command) error {
	cfg, cps, err := openCheckpoints(opts)
	if err != nil {
		return err
	}
	defer cps.Close()

	id, ok, err := cps.Get(cfg.AccountID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read checkpoint", err)
	}
	entry := CheckpointEntry{AccountID: cfg.AccountID, Stored: ok}
	if ok {
		entry.EventID = id.String()
	}

	out := newFormatter(opts, cmd)
	if opts.Format == "json" {
		return out.Success(entry)
	}
	printCheckpoint(out, entry)
	return nil
}

func runCheckpointList(opts *RootOptions, cmd *cobra.Command) error {
	_, cps, err := openCheckpoints(opts)
	if err != nil {
		return err
	}
	defer cps.Close()

	all, err := cps.List()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list checkpoints", err)
	}
	entries := make([]CheckpointEntry, 0, len(all))
	for account, id := range all {
		entries = append(entries, CheckpointEntry{AccountID: account, EventID: id.String(), Stored: true})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].AccountID < entries[j].AccountID
	})

	out := newFormatter(opts, cmd)
	if opts.Format == "json" {
		return out.Success(entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(out.Writer, "No checkpoints stored.")
		return nil
	}
	for _, e := range entries {
		printCheckpoint(out, e)
	}
	return nil
}

func runCheckpointReset(opts *RootOptions, cmd *cobra.Command) error {
	cfg, cps, err := openCheckpoints(opts)
	if err != nil {
		return err
	}
	defer cps.Close()

	if err := cps.Delete(cfg.AccountID); err != nil {
		return WrapExitError(ExitCommandError, "failed to delete checkpoint", err)
	}

	out := newFormatter(opts, cmd)
	entry := CheckpointEntry{AccountID: cfg.AccountID}
	if opts.Format == "json" {
		return out.Success(entry)
	}
	fmt.Fprintf(out.Writer, "Checkpoint reset for %s\n", cfg.AccountID)
	return nil
}

func printCheckpoint(out *OutputFormatter, e CheckpointEntry) {
	if !e.Stored {
		fmt.Fprintf(out.Writer, "%s: none\n", e.AccountID)
		return
	}
	fmt.Fprintf(out.Writer, "%s: %s\n", e.AccountID, e.EventID)
}
