package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nao1215/exitwatch/internal/config"
	"github.com/nao1215/exitwatch/internal/database"
	"github.com/nao1215/exitwatch/internal/watchlist"
)

// NewExitListCmd creates the exitlist command and its subcommands.
func NewExitListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exitlist",
		Short: "Download, inspect and query the Tor exit list",
		Long: `Exitlist manages the cached Tor exit list used by analyze.

Examples:
  # Download the list through a local Tor proxy
  exitwatch exitlist update --external-tor 127.0.0.1:9050

  # Show where the current list came from and how old it is
  exitwatch exitlist show

  # Check whether addresses are exit nodes
  exitwatch exitlist check 185.220.101.1 2001:db8::1`,
	}

	addConfigFlags(cmd, true)
	addWatchlistFlags(cmd, true)

	cmd.AddCommand(newExitListUpdateCmd())
	cmd.AddCommand(newExitListShowCmd())
	cmd.AddCommand(newExitListCheckCmd())

	return cmd
}

func newExitListUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Download the exit list and replace the cache",
		Args:  cobra.NoArgs,
		RunE:  runExitListUpdate,
	}
	cmd.Flags().Bool("no-save", false,
		"Do not store the list as a snapshot in the evidence database")
	return cmd
}

func newExitListShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the source, age and size of the current exit list",
		Args:  cobra.NoArgs,
		RunE:  runExitListShow,
	}
	cmd.Flags().BoolP("addresses", "a", false, "Also print every address")
	return cmd
}

func newExitListCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <address> [address ...]",
		Short: "Report whether addresses are on the current exit list",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runExitListCheck,
	}
}

// exitListConfig loads the configuration shared by the exitlist subcommands.
func exitListConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if err := applyWatchlistFlags(cmd, cfg); err != nil {
		return nil, nil, err
	}
	if err := cfg.ValidateWatchlist(); err != nil {
		return nil, nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, setupLogger(cmd, cfg), nil
}

// loadExitList loads the current list without downloading it. The snapshot
// store is consulted when the cache is missing and the database exists.
func loadExitList(ctx context.Context, cfg *config.Config, logger *slog.Logger) (watchlist.Snapshot, error) {
	var db *database.EvidenceDB
	if cfg.WatchlistPath == "" && cfg.SaveToDB {
		if _, err := os.Stat(cfg.DBDir); err == nil {
			if opened, err := database.Open(cfg.DBDir, database.DefaultOptions()); err == nil {
				db = opened
				defer db.Close()
			} else {
				logger.Debug("snapshot store unavailable", "error", err)
			}
		}
	}
	return newWatchlistProvider(cfg, nil, db, logger).Load(ctx)
}

func runExitListUpdate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := exitListConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.WatchlistPath != "" {
		return errors.New("update refreshes the cache; --watchlist names a fixed list file")
	}
	if cfg.ExitListURL == "" {
		return config.ErrNoExitListURL
	}

	noSave, err := cmd.Flags().GetBool("no-save")
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fetcher := newExitListFetcher(cfg, logger, cmd.ErrOrStderr())
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Error("failed to stop embedded Tor", "error", err)
		}
	}()

	provider := watchlist.NewCachedProvider(cfg.CachePath,
		watchlist.WithFetcher(fetcher),
		watchlist.WithProviderLogger(logger),
	)
	snap, err := provider.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("failed to update exit list: %w", err)
	}

	if !noSave {
		db, err := openDB(cfg)
		if err != nil {
			logger.Warn("exit list snapshot not stored", "error", err)
		} else if db != nil {
			saveSnapshot(ctx, db, snap, logger)
			db.Close()
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Exit list updated: %s addresses from %s\n", humanize.Comma(int64(snap.Set.Len())), snap.Source)
	fmt.Fprintf(out, "Cache: %s\n", provider.CachePath())
	writeListDiagnostics(out, snap)
	return nil
}

func runExitListShow(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := exitListConfig(cmd)
	if err != nil {
		return err
	}
	showAddresses, err := cmd.Flags().GetBool("addresses")
	if err != nil {
		return err
	}

	snap, err := loadExitList(cmd.Context(), cfg, logger)
	if err != nil {
		return fmt.Errorf("no exit list available (run 'exitwatch exitlist update'): %w", err)
	}

	out := cmd.OutOrStdout()
	status := "current"
	if snap.Stale {
		status = "stale"
	}
	fmt.Fprintf(out, "Source:    %s\n", snap.Source)
	if !snap.FetchedAt.IsZero() {
		fmt.Fprintf(out, "Fetched:   %s (%s)\n", snap.FetchedAt.UTC().Format(time.RFC3339), humanize.Time(snap.FetchedAt))
	}
	fmt.Fprintf(out, "Status:    %s\n", status)
	fmt.Fprintf(out, "Addresses: %s\n", humanize.Comma(int64(snap.Set.Len())))
	fmt.Fprintf(out, "Digest:    %s\n", snap.Set.Digest())
	writeListDiagnostics(out, snap)

	if showAddresses {
		fmt.Fprintln(out)
		if err := watchlist.Write(out, snap.Set); err != nil {
			return fmt.Errorf("failed to print addresses: %w", err)
		}
	}
	return nil
}

func runExitListCheck(cmd *cobra.Command, args []string) error {
	cfg, logger, err := exitListConfig(cmd)
	if err != nil {
		return err
	}

	var invalid []string
	for _, arg := range args {
		if _, ok := watchlist.Normalize(arg); !ok {
			invalid = append(invalid, arg)
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("not an IP address: %v", invalid)
	}

	snap, err := loadExitList(cmd.Context(), cfg, logger)
	if err != nil {
		return fmt.Errorf("no exit list available (run 'exitwatch exitlist update'): %w", err)
	}

	out := cmd.OutOrStdout()
	for _, arg := range args {
		addr, _ := watchlist.Normalize(arg)
		verdict := "not listed"
		if snap.Set.Contains(addr) {
			verdict = "exit node"
		}
		fmt.Fprintf(out, "%-39s  %s\n", addr, verdict)
	}
	if snap.Stale {
		fmt.Fprintf(out, "\nNote: the exit list is stale (fetched %s).\n", humanize.Time(snap.FetchedAt))
	}
	return nil
}

// writeListDiagnostics prints the lines rejected while loading the list.
func writeListDiagnostics(out io.Writer, snap watchlist.Snapshot) {
	if len(snap.Diagnostics) == 0 {
		return
	}
	fmt.Fprintf(out, "Warnings:  %d\n", len(snap.Diagnostics))
	for _, d := range snap.Diagnostics {
		fmt.Fprintf(out, "  %s\n", d.String())
	}
}
