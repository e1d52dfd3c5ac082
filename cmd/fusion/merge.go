package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/fusion/internal/core"
	"github.com/JonMunkholm/fusion/internal/export"
)

type mergeFlags struct {
	plan      string
	out       string
	format    string
	delimiter string
	sheet     string
	preview   int
	dbURL     string
	dbSchema  string
	dbTable   string
}

func newMergeCommand(g *globalFlags) *cobra.Command {
	f := &mergeFlags{}

	cmd := &cobra.Command{
		Use:   "merge <file>...",
		Short: "Rename columns, merge every table and export the result",
		Long: `Load the inputs, apply the rename plan (or the suggested names when no plan
is given), merge every table and export the result. Renaming is checked
before anything is written: a plan that would give one table two columns with
the same name fails without output.`,
		Args: cobra.MinimumNArgs(1),
		Example: `  fusion merge jan.csv feb.xlsx --out merged.csv
  fusion merge *.csv --plan plan.yaml --out merged.xlsx
  fusion merge *.csv --db-table merged_sales`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMerge(cmd, g, f, args)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.plan, "plan", "", "rename plan (YAML) to apply")
	fl.StringVarP(&f.out, "out", "o", "-", "output file, - for stdout")
	fl.StringVar(&f.format, "format", "", "output format: csv or xlsx (default from the output extension, else csv)")
	fl.StringVar(&f.delimiter, "delimiter", ",", `CSV field delimiter; "tab" for a tab`)
	fl.StringVar(&f.sheet, "sheet", "Sheet1", "worksheet name for xlsx output")
	fl.IntVar(&f.preview, "preview", 0, "print the first N merged rows to stderr")
	fl.StringVar(&f.dbURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL URL for --db-table")
	fl.StringVar(&f.dbSchema, "db-schema", "public", "schema for --db-table")
	fl.StringVar(&f.dbTable, "db-table", "", "also copy the result into this PostgreSQL table")
	return cmd
}

func runMerge(cmd *cobra.Command, g *globalFlags, f *mergeFlags, args []string) error {
	ctx := cmd.Context()
	stderr := cmd.ErrOrStderr()

	format, err := outputFormat(f.format, f.out)
	if err != nil {
		return err
	}
	delim, err := parseDelimiter(f.delimiter)
	if err != nil {
		return err
	}
	if f.dbTable != "" {
		if err := export.ValidateTableName(f.dbTable); err != nil {
			return err
		}
		if f.dbURL == "" {
			return fmt.Errorf("--db-table needs --database-url or DATABASE_URL")
		}
	}

	sess, err := loadSession(ctx, stderr, g, args)
	if err != nil {
		return err
	}
	if f.plan != "" {
		if err := applyPlanFile(cmd, sess, f.plan); err != nil {
			return err
		}
	}

	res, err := sess.Apply(ctx)
	if err != nil {
		if detail := core.Detail(err); detail != "" {
			return fmt.Errorf("%s: %s", res.State, detail)
		}
		return fmt.Errorf("%s: %w", res.State, err)
	}
	final := res.Final
	fmt.Fprintf(stderr, "merged %d rows x %d columns\n", final.Len(), final.Width())

	if f.preview > 0 {
		if err := renderTable(stderr, final, f.preview); err != nil {
			return err
		}
	}

	if err := writeOutput(cmd, final, format, export.Options{Delimiter: delim, SheetName: f.sheet}, f.out); err != nil {
		return err
	}

	if f.dbTable != "" {
		n, err := copyToDatabase(ctx, f, final)
		if err != nil {
			return err
		}
		fmt.Fprintf(stderr, "copied %d rows into %s.%s\n", n, f.dbSchema, f.dbTable)
	}
	return nil
}

func writeOutput(cmd *cobra.Command, t *core.Table, format export.Format, opts export.Options, out string) error {
	if t.Empty() {
		return core.ErrNothingToExport
	}
	if out == "" || out == "-" {
		w := bufio.NewWriter(cmd.OutOrStdout())
		if err := export.Write(w, t, format, opts); err != nil {
			return err
		}
		return w.Flush()
	}

	file, err := os.Create(out)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(file)
	if err := export.Write(w, t, format, opts); err != nil {
		file.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", out)
	return nil
}

func copyToDatabase(ctx context.Context, f *mergeFlags, t *core.Table) (int64, error) {
	pool, err := pgxpool.New(ctx, f.dbURL)
	if err != nil {
		return 0, fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	return export.NewPostgresSink(pool, f.dbSchema).Write(ctx, f.dbTable, t)
}

// outputFormat picks the export format from the flag, else the output
// file extension, else CSV.
func outputFormat(flag, out string) (export.Format, error) {
	if flag != "" {
		return export.ParseFormat(flag, export.FormatCSV)
	}
	switch strings.ToLower(filepath.Ext(out)) {
	case ".xlsx":
		return export.FormatXLSX, nil
	default:
		return export.FormatCSV, nil
	}
}

func parseDelimiter(s string) (rune, error) {
	if strings.EqualFold(s, "tab") || s == `\t` {
		return '\t', nil
	}
	r := []rune(s)
	if len(r) != 1 {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", s)
	}
	return r[0], nil
}
