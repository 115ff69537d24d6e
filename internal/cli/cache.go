package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/capsule/internal/cache"
	"github.com/roach88/capsule/internal/config"
)

// CacheOptions holds flags for the cache commands.
type CacheOptions struct {
	*RootOptions
	Path string
}

// ClearResult is the payload of cache clear.
type ClearResult struct {
	Path    string `json:"path"`
	Removed int64  `json:"removed"`
}

// NewCacheCommand creates the cache command group.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CacheOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the persistent job cache",
	}
	cmd.PersistentFlags().StringVar(&opts.Path, "path", "", "SQLite cache file (defaults to the configured path)")

	cmd.AddCommand(&cobra.Command{
		Use:           "stats",
		Short:         "Show cache size",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheStats(opts, cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "clear",
		Short:         "Delete every cache entry",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheClear(opts, cmd)
		},
	})

	return cmd
}

func runCacheStats(opts *CacheOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	store, path, err := openCacheFile(opts)
	if err != nil {
		return outputCommandError(formatter, ErrCodeCache, err)
	}
	defer store.Close()

	st, err := store.Stats(cmd.Context())
	if err != nil {
		return outputCommandError(formatter, ErrCodeCache, err)
	}

	if formatter.Format == "json" {
		return formatter.Success(st)
	}

	fmt.Fprintf(formatter.Writer, "Cache: %s\n", path)
	fmt.Fprintf(formatter.Writer, "  Entries: %d\n", st.Entries)
	fmt.Fprintf(formatter.Writer, "  Jobs:    %d\n", st.Jobs)
	fmt.Fprintf(formatter.Writer, "  Bytes:   %d\n", st.Bytes)
	if st.Entries > 0 {
		fmt.Fprintf(formatter.Writer, "  Oldest:  %s\n", formatStoredAt(st.Oldest))
		fmt.Fprintf(formatter.Writer, "  Newest:  %s\n", formatStoredAt(st.Newest))
	}
	return nil
}

func runCacheClear(opts *CacheOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	store, path, err := openCacheFile(opts)
	if err != nil {
		return outputCommandError(formatter, ErrCodeCache, err)
	}
	defer store.Close()

	n, err := store.Clear(cmd.Context())
	if err != nil {
		return outputCommandError(formatter, ErrCodeCache, err)
	}

	if formatter.Format == "json" {
		return formatter.Success(ClearResult{Path: path, Removed: n})
	}
	fmt.Fprintf(formatter.Writer, "✓ Removed %d cache entries from %s\n", n, path)
	return nil
}

// openCacheFile opens the SQLite cache named by --path or the
// configuration. A missing file is an error; the commands never create one.
func openCacheFile(opts *CacheOptions) (*cache.SQLite, string, error) {
	path := opts.Path
	if path == "" {
		cfg, err := config.Load(opts.Config)
		if err != nil {
			return nil, "", err
		}
		if cfg.Cache.Mode != config.CacheSQLite {
			return nil, "", fmt.Errorf("%s: cache mode is %q, not %q", ErrCodeCacheDisabled, cfg.Cache.Mode, config.CacheSQLite)
		}
		path = cfg.Cache.Path
	}
	if _, err := os.Stat(path); err != nil {
		return nil, "", fmt.Errorf("cache not found: %w", err)
	}
	store, err := cache.OpenSQLite(path, cache.NewKeyer())
	if err != nil {
		return nil, "", err
	}
	return store, path, nil
}

// formatStoredAt renders a stored_at column value.
func formatStoredAt(unix int64) string {
	return time.Unix(unix, 0).UTC().Format(time.RFC3339)
}
