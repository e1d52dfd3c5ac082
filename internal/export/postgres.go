package export

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/fusion/internal/core"
	"github.com/JonMunkholm/fusion/internal/logging"
)

// ErrSinkDisabled is returned when no database is configured.
var ErrSinkDisabled = errors.New("database sink is not configured")

// ErrInvalidTableName is returned for table names that are not plain identifiers.
var ErrInvalidTableName = errors.New("database sink: invalid table name")

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// Beginner starts transactions. *pgxpool.Pool satisfies it.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Copier is the part of a transaction the sink uses.
type Copier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// PostgresSink copies tables into PostgreSQL. Every column is created as
// text and null cells stay NULL.
type PostgresSink struct {
	db     Beginner
	schema string
}

// NewPostgresSink returns a sink writing into schema ("public" when empty).
// A nil db yields a sink whose Write returns ErrSinkDisabled.
func NewPostgresSink(db Beginner, schema string) *PostgresSink {
	if schema == "" {
		schema = "public"
	}
	return &PostgresSink{db: db, schema: schema}
}

// Enabled reports whether a database is configured.
func (s *PostgresSink) Enabled() bool {
	return s != nil && s.db != nil
}

// ValidateTableName checks that name is a plain identifier.
func ValidateTableName(name string) error {
	if !tableNamePattern.MatchString(name) {
		return fmt.Errorf("%w %q", ErrInvalidTableName, name)
	}
	return nil
}

// Write replaces table with the contents of t in one transaction and
// returns the number of rows copied.
func (s *PostgresSink) Write(ctx context.Context, table string, t *core.Table) (int64, error) {
	if !s.Enabled() {
		return 0, ErrSinkDisabled
	}
	if err := ValidateTableName(table); err != nil {
		return 0, err
	}
	if t.Empty() {
		return 0, core.ErrNothingToExport
	}
	if dupes := core.Duplicates(t.Columns); len(dupes) > 0 {
		return 0, &core.FinalCollisionError{Names: dupes}
	}

	logger := logging.WithFields(ctx, "schema", s.schema, "table", table)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("database sink: begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	n, err := copyTable(ctx, tx, s.schema, table, t)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("database sink: commit: %w", err)
	}

	logger.Info("table exported to database", "rows", n, "columns", t.Width())
	return n, nil
}

func copyTable(ctx context.Context, tx Copier, schema, table string, t *core.Table) (int64, error) {
	ident := pgx.Identifier{schema, table}

	if _, err := tx.Exec(ctx, dropTableSQL(ident)); err != nil {
		return 0, fmt.Errorf("database sink: drop table: %w", err)
	}
	if _, err := tx.Exec(ctx, createTableSQL(ident, t.Columns)); err != nil {
		return 0, fmt.Errorf("database sink: create table: %w", err)
	}

	n, err := tx.CopyFrom(ctx, ident, t.Columns, pgx.CopyFromSlice(len(t.Rows), func(i int) ([]any, error) {
		row := t.Rows[i]
		values := make([]any, len(row))
		for j, c := range row {
			values[j] = c
		}
		return values, nil
	}))
	if err != nil {
		return 0, fmt.Errorf("database sink: copy rows: %w", err)
	}
	return n, nil
}

func dropTableSQL(ident pgx.Identifier) string {
	return "DROP TABLE IF EXISTS " + ident.Sanitize()
}

func createTableSQL(ident pgx.Identifier, columns []string) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = pgx.Identifier{c}.Sanitize() + " text"
	}
	return "CREATE TABLE " + ident.Sanitize() + " (" + strings.Join(defs, ", ") + ")"
}
