package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/fusion/internal/core"
	"github.com/JonMunkholm/fusion/internal/plan"
)

func newClustersCommand(g *globalFlags) *cobra.Command {
	var planPath string

	cmd := &cobra.Command{
		Use:   "clusters <file>...",
		Short: "Show column groups, their options and sample values",
		Args:  cobra.MinimumNArgs(1),
		Example: `  fusion clusters jan.csv feb.xlsx
  fusion clusters *.csv --plan plan.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := loadSession(ctx, cmd.ErrOrStderr(), g, args)
			if err != nil {
				return err
			}
			if planPath != "" {
				if err := applyPlanFile(cmd, sess, planPath); err != nil {
					return err
				}
			}
			return renderGroups(cmd.OutOrStdout(), sess.Reconcile(ctx))
		},
	}

	cmd.Flags().StringVar(&planPath, "plan", "", "rename plan to apply before showing the groups")
	return cmd
}

func newPlanCommand(g *globalFlags) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "plan <file>...",
		Short: "Write a rename plan with the suggested name for every group",
		Long: `Write a YAML rename plan listing every column group with its suggested key.
Edit "use" (an existing column name) or "custom" (free text) per group, then
pass the file to "fusion merge --plan".`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := loadSession(cmd.Context(), cmd.ErrOrStderr(), g, args)
			if err != nil {
				return err
			}
			p := plan.Draft(sess.Reconcile(cmd.Context()))

			if out == "" || out == "-" {
				return plan.Write(cmd.OutOrStdout(), p)
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := plan.Write(f, p); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote plan with %d groups to %s\n", len(p.Groups), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "plan file to write (default stdout)")
	return cmd
}

// applyPlanFile loads a plan and records its choices on sess.
func applyPlanFile(cmd *cobra.Command, sess *core.Session, path string) error {
	p, err := plan.Load(path)
	if err != nil {
		return err
	}
	skipped, err := plan.Apply(cmd.Context(), p, sess)
	if err != nil {
		return err
	}
	for _, key := range skipped {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning plan group %q matches no column; ignored\n", key)
	}
	return nil
}

// renderGroups prints one row per column group.
func renderGroups(w io.Writer, v *core.View) error {
	table := tablewriter.NewTable(w)
	table.Header("#", "Key", "Columns", "Renames To", "Sample Values")
	for _, gv := range v.Groups {
		if err := table.Append(
			strconv.Itoa(gv.Index),
			gv.Key,
			strings.Join(gv.Names, ", "),
			gv.Resolved,
			strings.Join(gv.Samples, ", "),
		); err != nil {
			return err
		}
	}
	return table.Render()
}

// renderTable prints at most limit rows of t.
func renderTable(w io.Writer, t *core.Table, limit int) error {
	table := tablewriter.NewTable(w)
	header := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c
	}
	table.Header(header...)

	rows := t.Rows
	if limit >= 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	for _, row := range rows {
		cells := make([]any, len(row))
		for i, c := range row {
			cells[i] = c.String
		}
		if err := table.Append(cells...); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}
	if len(rows) < t.Len() {
		fmt.Fprintf(w, "(%d of %d rows)\n", len(rows), t.Len())
	}
	return nil
}
