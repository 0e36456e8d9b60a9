package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/pushsync/internal/store"
)

// JournalOptions holds flags for the journal commands.
type JournalOptions struct {
	*RootOptions
	After   int64
	Limit   int
	Through int64
}

// JournalClearResult reports a journal clear.
type JournalClearResult struct {
	Through int64 `json:"through"`
	Removed int64 `json:"removed"`
}

// NewJournalCommand creates the journal command group.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JournalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Read or clear the change journal",
		Long: `The change journal records every row the sync pipeline committed, in
commit order, so the foreground application can merge them. Entries stay
until cleared.

Examples:
  pushsync journal list --after 120 --limit 50
  pushsync journal clear --through 170`,
	}

	listCmd := &cobra.Command{
		Use:           "list",
		Short:         "List journal entries oldest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournalList(opts, cmd)
		},
	}
	listCmd.Flags().Int64Var(&opts.After, "after", 0, "only entries with a greater seq")
	listCmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum entries (0 for all)")

	clearCmd := &cobra.Command{
		Use:           "clear",
		Short:         "Delete entries up to and including a seq",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournalClear(opts, cmd)
		},
	}
	clearCmd.Flags().Int64Var(&opts.Through, "through", 0, "last seq to delete (required)")
	_ = clearCmd.MarkFlagRequired("through")

	cmd.AddCommand(listCmd, clearCmd)
	return cmd
}

func openStore(opts *RootOptions) (*store.Store, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(cfg.StorePath())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}
	return st, nil
}

func runJournalList(opts *JournalOptions, cmd *cobra.Command) error {
	st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	entries, err := st.ReadJournal(context.Background(), opts.After, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}

	out := newFormatter(opts.RootOptions, cmd)
	if opts.Format == "json" {
		return out.Success(entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(out.Writer, "Journal is empty.")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(out.Writer, "[%d] %s %s %s (event %s)\n", e.Seq, e.Op, e.Table, e.Key, e.EventID)
	}
	return nil
}

func runJournalClear(opts *JournalOptions, cmd *cobra.Command) error {
	if opts.Through <= 0 {
		return NewExitError(ExitCommandError, "--through must be positive")
	}
	st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := st.ClearJournal(context.Background(), opts.Through)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to clear journal", err)
	}

	out := newFormatter(opts.RootOptions, cmd)
	result := JournalClearResult{Through: opts.Through, Removed: n}
	if opts.Format == "json" {
		return out.Success(result)
	}
	fmt.Fprintf(out.Writer, "Removed %d entr(ies) through seq %d\n", n, opts.Through)
	return nil
}
