package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/fusion/internal/export"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func run(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func inputs(t *testing.T) (dir, a, b string) {
	t.Helper()
	dir = t.TempDir()
	a = writeFile(t, dir, "jan.csv", "Customer Name,Amount\nAcme,1\n")
	b = writeFile(t, dir, "feb.csv", "customer_name,amount\nBeta,2\n")
	return dir, a, b
}

// ============================================================================
// clusters
// ============================================================================

func TestClusters(t *testing.T) {
	_, a, b := inputs(t)

	stdout, stderr, err := run(t, "clusters", a, b)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Loaded file: `jan.csv`")
	assert.Contains(t, stdout, "customer_name")
	assert.Contains(t, stdout, "Customer Name, customer_name")
	assert.Contains(t, stdout, "Acme, Beta")
}

func TestClusters_NoTables(t *testing.T) {
	dir := t.TempDir()
	notes := writeFile(t, dir, "notes.txt", "hello")

	_, stderr, err := run(t, "clusters", notes)
	require.Error(t, err)
	assert.Contains(t, stderr, "Unsupported file type")
}

// ============================================================================
// plan + merge
// ============================================================================

func TestPlanThenMerge(t *testing.T) {
	dir, a, b := inputs(t)
	planPath := filepath.Join(dir, "plan.yaml")

	_, _, err := run(t, "plan", a, b, "--out", planPath)
	require.NoError(t, err)
	data, err := os.ReadFile(planPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "key: customer_name")

	custom := writeFile(t, dir, "custom.yaml", `version: 1
groups:
  - key: customer_name
    use: Customer Name
  - key: amount
    custom: total
  - key: gone
`)
	out := filepath.Join(dir, "merged.csv")
	_, stderr, err := run(t, "merge", a, b, "--plan", custom, "--out", out)
	require.NoError(t, err)
	assert.Contains(t, stderr, `"gone" matches no column`)
	assert.Contains(t, stderr, "merged 2 rows x 2 columns")

	merged, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "Customer Name,total\nAcme,1\nBeta,2\n", string(merged))
}

func TestMerge_StdoutWithDelimiter(t *testing.T) {
	_, a, b := inputs(t)

	stdout, _, err := run(t, "merge", a, b, "--delimiter", ";")
	require.NoError(t, err)
	assert.Equal(t, "customer_name;amount\nAcme;1\nBeta;2\n", stdout)
}

func TestMerge_XLSXByExtension(t *testing.T) {
	dir, a, b := inputs(t)
	out := filepath.Join(dir, "merged.xlsx")

	_, _, err := run(t, "merge", a, b, "--out", out, "--sheet", "Merged")
	require.NoError(t, err)

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Merged")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"customer_name", "amount"}, {"Acme", "1"}, {"Beta", "2"}}, rows)
}

func TestMerge_CollisionFailsWithoutOutput(t *testing.T) {
	dir, a, b := inputs(t)
	custom := writeFile(t, dir, "clash.yaml", `groups:
  - key: customer_name
    custom: x
  - key: amount
    custom: x
`)
	out := filepath.Join(dir, "merged.csv")

	_, _, err := run(t, "merge", a, b, "--plan", custom, "--out", out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "aborted")
	assert.Contains(t, err.Error(), "jan.csv")
	assert.NoFileExists(t, out)
}

func TestMerge_FlagErrors(t *testing.T) {
	_, a, _ := inputs(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad format", []string{"--format", "pdf"}, "unknown export format"},
		{"bad delimiter", []string{"--delimiter", ";;"}, "single character"},
		{"bad table", []string{"--db-table", "1bad", "--database-url", "postgres://x"}, "invalid table name"},
		{"missing url", []string{"--db-table", "merged", "--database-url", ""}, "DATABASE_URL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := run(t, append([]string{"merge", a}, tt.args...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestOutputFormat(t *testing.T) {
	tests := []struct {
		flag, out string
		want      export.Format
	}{
		{"", "-", export.FormatCSV},
		{"", "x.XLSX", export.FormatXLSX},
		{"csv", "x.xlsx", export.FormatCSV},
		{"excel", "-", export.FormatXLSX},
	}
	for _, tt := range tests {
		got, err := outputFormat(tt.flag, tt.out)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.flag+"|"+tt.out)
	}
}
