package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/assetsync/internal/blobstore"
	"github.com/roach88/assetsync/internal/engine"
	"github.com/roach88/assetsync/internal/materialize"
	"github.com/roach88/assetsync/internal/replica"
	"github.com/roach88/assetsync/internal/serializer"
	"github.com/roach88/assetsync/internal/store"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	Database        string
	BlobDir         string
	InlineThreshold int
	Languages       []string
	BatchSize       int

	// Tokens allows overriding the session id generator (for testing).
	// If nil, defaults to replica.UUIDv7Generator.
	Tokens replica.TokenGenerator
}

// SyncResult is the output of the sync command.
type SyncResult struct {
	Solution  string `json:"solution"`
	Root      string `json:"root"`
	Session   string `json:"session"`
	Requested int    `json:"requested"`
	Fetched   int    `json:"fetched"`
	Skipped   int    `json:"skipped"`
	Stored    int    `json:"stored"`
	Projects  int    `json:"projects"`
	Documents int    `json:"documents"`
}

func (r SyncResult) renderText(w io.Writer) {
	fmt.Fprintf(w, "solution  %s\n", r.Solution)
	fmt.Fprintf(w, "root      %s\n", r.Root)
	fmt.Fprintf(w, "session   %s\n", r.Session)
	fmt.Fprintf(w, "requested %d fetched %d skipped %d stored %d\n", r.Requested, r.Fetched, r.Skipped, r.Stored)
	fmt.Fprintf(w, "replica   %d project(s), %d document(s)\n", r.Projects, r.Documents)
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync <manifest>",
		Short: "Synchronize a solution manifest into a local replica",
		Long: `Build the checksum tree of a manifest and pull it into a SQLite replica,
transferring only the nodes the replica does not already hold. The replica
is then reconstructed to confirm it is complete.

Example:
  assetsync sync --db ./replica.db solution.yaml
  assetsync sync --db ./replica.db --blob-dir ./blobs --inline-threshold 4096 solution.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite replica database (required)")
	cmd.Flags().StringVar(&opts.BlobDir, "blob-dir", "", "directory for large-text blob storage (in-memory if empty)")
	cmd.Flags().IntVar(&opts.InlineThreshold, "inline-threshold", serializer.DefaultInlineThreshold, "texts of at least this many bytes go to blob storage")
	cmd.Flags().StringSliceVar(&opts.Languages, "languages", nil, "languages the replica reconstructs (default all)")
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", replica.DefaultBatchSize, "checksums per transfer request")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runSync(ctx context.Context, opts *SyncOptions, path string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)
	logger := opts.logger(cmd.ErrOrStderr())

	m, err := LoadManifest(path)
	if err != nil {
		return failLoad(formatter, err)
	}
	s, err := m.Solution()
	if err != nil {
		return failLoad(formatter, err)
	}

	blobs, err := openBlobs(opts.BlobDir, logger)
	if err != nil {
		_ = formatter.Error(ErrCodeStoreFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open blob storage", err)
	}
	defer func() {
		if closeErr := blobs.Close(); closeErr != nil {
			logger.Error("error closing blob storage", "error", closeErr)
		}
	}()

	serOpts := []serializer.Option{
		serializer.WithBlobStorage(blobs),
		serializer.WithInlineThreshold(opts.InlineThreshold),
		serializer.WithLogger(logger),
	}
	producer := engine.New(engine.WithLogger(logger), engine.WithSerializerOptions(serOpts...))
	h, root, err := producer.BuildScope(ctx, s)
	if err != nil {
		_ = formatter.Error(ErrCodeBuildFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "build failed", err)
	}
	defer producer.DisposeScope(h)

	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeStoreFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open replica database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	syncOpts := []replica.Option{
		replica.WithLogger(logger),
		replica.WithBatchSize(opts.BatchSize),
	}
	if opts.Tokens != nil {
		syncOpts = append(syncOpts, replica.WithTokenGenerator(opts.Tokens))
	}
	if len(opts.Languages) > 0 {
		syncOpts = append(syncOpts, replica.WithMaterializeOptions(materialize.WithSupportedLanguages(opts.Languages...)))
	}
	syncer := replica.New(st, serializer.New(serOpts...), syncOpts...)

	stats, err := syncer.Sync(ctx, root, producer.Fetcher(h))
	if err != nil {
		_ = formatter.Error(ErrCodeSyncFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "sync failed", err)
	}
	formatter.VerboseLog("Synced %s: %d requested, %d skipped", root.Short(), stats.Requested, stats.Skipped)

	info, err := syncer.Materialize(ctx, root)
	if err != nil {
		_ = formatter.Error(ErrCodeSyncFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "replica is incomplete", err)
	}

	return formatter.Success(SyncResult{
		Solution:  string(s.ID()),
		Root:      root.String(),
		Session:   stats.Session,
		Requested: stats.Requested,
		Fetched:   stats.Fetched,
		Skipped:   stats.Skipped,
		Stored:    stats.Stored,
		Projects:  len(info.Projects),
		Documents: info.DocumentCount(),
	})
}

func openBlobs(dir string, logger *slog.Logger) (*blobstore.Store, error) {
	cfg := blobstore.InMemoryConfig()
	if dir != "" {
		cfg = blobstore.DefaultConfig(dir)
	}
	cfg.Logger = logger
	return blobstore.Open(cfg)
}
