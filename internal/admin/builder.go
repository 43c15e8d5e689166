package admin

import (
	"fmt"
	"sort"
	"strings"
)

// The builder produces parameterized SQL text. Values always travel as
// parameters; identifiers are quoted, and the engine only passes identifiers
// it has validated against a fresh catalog read.

// BrowseOptions controls generic table browsing.
type BrowseOptions struct {
	Page      int
	Limit     int
	Search    string
	SortBy    string
	SortOrder string
}

const defaultLimit = 50

func (o BrowseOptions) normalized() BrowseOptions {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.Limit <= 0 {
		o.Limit = defaultLimit
	}
	return o
}

// ValidIdentifier checks if a name is a valid SQL identifier.
// Used by the API layer for path parameter validation before any catalog
// lookup happens.
func ValidIdentifier(name string) bool {
	if name == "" || len(name) > 63 {
		return false
	}
	for i, r := range name {
		if i == 0 {
			if !((r >= 'a' && r <= 'z') || r == '_') {
				return false
			}
		} else {
			if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_') {
				return false
			}
		}
	}
	return true
}

// quoteIdentifier escapes double quotes by doubling them and wraps the name
// in quotes (SQL standard).
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// buildBrowseQuery returns the data query, the matching count query (same
// WHERE clause, no ORDER/LIMIT) and the shared argument list.
//
// The search term is bound once and reused positionally across an ILIKE per
// textual column. A table with no textual columns makes search a silent
// no-op. sortBy falls back to the first physical column when absent or
// unknown; order defaults to DESC.
func buildBrowseQuery(table string, columns, textColumns []string, opts BrowseOptions) (dataSQL, countSQL string, args []any) {
	opts = opts.normalized()

	var where string
	if opts.Search != "" && len(textColumns) > 0 {
		conds := make([]string, len(textColumns))
		for i, col := range textColumns {
			conds[i] = quoteIdentifier(col) + ` ILIKE $1`
		}
		where = ` WHERE ` + strings.Join(conds, " OR ")
		args = append(args, "%"+opts.Search+"%")
	}

	sortCol := columns[0]
	for _, col := range columns {
		if col == opts.SortBy {
			sortCol = col
			break
		}
	}
	direction := "DESC"
	if strings.EqualFold(opts.SortOrder, "asc") {
		direction = "ASC"
	}

	from := ` FROM ` + quoteIdentifier(table)
	offset := (opts.Page - 1) * opts.Limit
	dataSQL = `SELECT *` + from + where +
		` ORDER BY ` + quoteIdentifier(sortCol) + ` ` + direction +
		fmt.Sprintf(` LIMIT %d OFFSET %d`, opts.Limit, offset)
	countSQL = `SELECT COUNT(*)` + from + where
	return dataSQL, countSQL, args
}

// buildInsertQuery builds a parameterized INSERT over data's columns in
// sorted order. When the table has a single-column primary key the
// generated id is surfaced via RETURNING; composite or absent keys omit it.
func buildInsertQuery(table string, data map[string]any, pkCols []string) (string, []any, error) {
	if len(data) == 0 {
		return "", nil, fmt.Errorf("no columns to insert")
	}

	cols := sortedKeys(data)
	quoted := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		quoted[i] = quoteIdentifier(col)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = data[col]
	}

	sql := `INSERT INTO ` + quoteIdentifier(table) +
		` (` + strings.Join(quoted, ", ") + `) VALUES (` + strings.Join(placeholders, ", ") + `)`
	if len(pkCols) == 1 {
		sql += ` RETURNING ` + quoteIdentifier(pkCols[0])
	}
	return sql, args, nil
}

// buildUpdateQuery builds a parameterized UPDATE addressed by the full
// primary-key tuple. Primary-key columns are immutable through this path and
// are dropped from the SET list.
func buildUpdateQuery(table string, pkCols []string, primaryKey, data map[string]any) (string, []any, error) {
	if len(pkCols) == 0 {
		return "", nil, ErrNoPrimaryKey
	}

	pkSet := make(map[string]bool, len(pkCols))
	for _, col := range pkCols {
		pkSet[col] = true
	}

	var setCols []string
	for _, col := range sortedKeys(data) {
		if !pkSet[col] {
			setCols = append(setCols, col)
		}
	}
	if len(setCols) == 0 {
		return "", nil, ErrNoUpdatableColumns
	}

	var args []any
	sets := make([]string, len(setCols))
	for i, col := range setCols {
		args = append(args, data[col])
		sets[i] = quoteIdentifier(col) + fmt.Sprintf(" = $%d", len(args))
	}

	where, args, err := pkWhere(pkCols, primaryKey, args)
	if err != nil {
		return "", nil, err
	}

	sql := `UPDATE ` + quoteIdentifier(table) + ` SET ` + strings.Join(sets, ", ") + where
	return sql, args, nil
}

// buildDeleteQuery builds a parameterized DELETE addressed by the full
// primary-key tuple.
func buildDeleteQuery(table string, pkCols []string, primaryKey map[string]any) (string, []any, error) {
	if len(pkCols) == 0 {
		return "", nil, ErrNoPrimaryKey
	}

	where, args, err := pkWhere(pkCols, primaryKey, nil)
	if err != nil {
		return "", nil, err
	}

	sql := `DELETE FROM ` + quoteIdentifier(table) + where
	return sql, args, nil
}

// pkWhere appends one equality condition per primary-key column, in catalog
// ordinal order, so generated WHERE clauses are deterministic.
func pkWhere(pkCols []string, primaryKey map[string]any, args []any) (string, []any, error) {
	conds := make([]string, len(pkCols))
	for i, col := range pkCols {
		val, ok := primaryKey[col]
		if !ok {
			return "", nil, fmt.Errorf("missing primary key column %q", col)
		}
		args = append(args, val)
		conds[i] = quoteIdentifier(col) + fmt.Sprintf(" = $%d", len(args))
	}
	return ` WHERE ` + strings.Join(conds, " AND "), args, nil
}

// guardQuery enforces the ad-hoc query policy: the statement must be a
// SELECT, and a LIMIT 100 is appended when no limit token is present. This
// is a policy check, not a SQL parser, and operates under the
// already-authorized-caller assumption.
func guardQuery(sql string) (string, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(sql), "; \t\n")
	lower := strings.ToLower(trimmed)
	if !strings.HasPrefix(lower, "select") {
		return "", ErrQueryRejected
	}
	if !strings.Contains(lower, "limit") {
		trimmed += " LIMIT 100"
	}
	return trimmed, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
