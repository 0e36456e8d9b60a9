package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/pushsync/internal/checkpoint"
	"github.com/roach88/pushsync/internal/store"
)

// StatusResult summarizes the local data of the configured account.
type StatusResult struct {
	AccountID  string           `json:"account_id"`
	DataDir    string           `json:"data_dir"`
	Checkpoint string           `json:"checkpoint,omitempty"`
	Tables     map[string]int64 `json:"tables"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the checkpoint and local row counts",
		Long: `Show the configured account's checkpoint and the number of rows in
every local table, including the change journal.

Examples:
  pushsync status
  pushsync status --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.StorePath())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer st.Close()
	tables, err := st.Summary(context.Background())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to summarize store", err)
	}

	cps, err := checkpoint.Open(checkpoint.Options{Dir: cfg.CheckpointDir()})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open checkpoint store", err)
	}
	defer cps.Close()
	id, ok, err := cps.Get(cfg.AccountID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read checkpoint", err)
	}

	result := StatusResult{AccountID: cfg.AccountID, DataDir: cfg.DataDir, Tables: tables}
	if ok {
		result.Checkpoint = id.String()
	}

	out := newFormatter(opts, cmd)
	if opts.Format == "json" {
		return out.Success(result)
	}
	fmt.Fprintf(out.Writer, "Account: %s\n", result.AccountID)
	if result.Checkpoint == "" {
		fmt.Fprintln(out.Writer, "Checkpoint: none")
	} else {
		fmt.Fprintf(out.Writer, "Checkpoint: %s\n", result.Checkpoint)
	}
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out.Writer, "  %-16s %d\n", name, tables[name])
	}
	return nil
}
