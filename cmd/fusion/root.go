package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/fusion/internal/core"
	"github.com/JonMunkholm/fusion/internal/ingest"
	"github.com/JonMunkholm/fusion/internal/logging"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	logLevel    string
	logFormat   string
	maxFileSize int64
}

func newRootCommand() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "fusion",
		Short: "Merge CSV and Excel files and reconcile their column names",
		Long: `fusion loads CSV and Excel files, groups columns whose names differ only in
case, spacing or punctuation, and merges every table into one.

Use "fusion clusters" to inspect the groups, "fusion plan" to write an
editable rename plan, and "fusion merge" to apply it and export the result.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// .env is optional for the CLI
			_ = godotenv.Load()
			logging.SetupWriter(cmd.ErrOrStderr(), g.logLevel, g.logFormat)
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	pf.StringVar(&g.logFormat, "log-format", "text", "log format: text or json")
	pf.Int64Var(&g.maxFileSize, "max-file-size", ingest.DefaultMaxFileSize, "largest accepted input file in bytes")

	root.AddCommand(newClustersCommand(g))
	root.AddCommand(newPlanCommand(g))
	root.AddCommand(newMergeCommand(g))

	return root
}

// loadSession reads and parses the input files into a fresh session,
// writing load notices to w. It fails when no table could be loaded.
func loadSession(ctx context.Context, w io.Writer, g *globalFlags, paths []string) (*core.Session, error) {
	uploads := make([]ingest.Upload, 0, len(paths))
	var notices []core.Notice
	for _, p := range paths {
		u, err := ingest.ReadFile(p, g.maxFileSize)
		if err != nil {
			notices = append(notices, ingest.FailureNotice(p, err))
			continue
		}
		uploads = append(uploads, u)
	}

	batch, err := ingest.NewParser(g.maxFileSize).Parse(ctx, uploads)
	if err != nil {
		return nil, err
	}
	notices = append(notices, batch.Notices...)

	sess := core.NewSession(uuid.NewString())
	ctx = logging.WithSessionID(ctx, sess.ID())
	sess.MarkUploaded()
	notices = append(notices, sess.Load(ctx, batch.Sources)...)

	printNotices(w, notices)
	slog.Debug("inputs loaded", "files", len(paths), "tables", len(batch.Sources), "failed", batch.Failed)

	if len(batch.Sources) == 0 {
		return nil, fmt.Errorf("no tables loaded: %w", core.ErrNoTables)
	}
	return sess, nil
}

func printNotices(w io.Writer, notices []core.Notice) {
	for _, n := range notices {
		fmt.Fprintf(w, "%-7s %s\n", n.Level, n.Message)
	}
}
