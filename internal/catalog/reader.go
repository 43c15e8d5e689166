package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Reader answers read-only questions about the public schema by querying
// the Postgres catalog. Every call hits the catalog fresh; only names the
// catalog itself returned are safe to splice into generated SQL.
type Reader struct {
	pool         *pgxpool.Pool
	queryTimeout time.Duration
}

// NewReader creates a catalog reader over the given pool.
func NewReader(pool *pgxpool.Pool, queryTimeout time.Duration) *Reader {
	return &Reader{pool: pool, queryTimeout: queryTimeout}
}

// withTimeout returns a context with the query timeout applied.
// A parent deadline that is already shorter wins.
func (r *Reader) withTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	if deadline, ok := parent.Deadline(); ok {
		if time.Until(deadline) <= r.queryTimeout {
			return context.WithCancel(parent)
		}
	}
	return context.WithTimeout(parent, r.queryTimeout)
}

// ListTables returns the names of all base tables in the public schema,
// ordered by name. Views are excluded.
func (r *Reader) ListTables(ctx context.Context) ([]string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public'
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	tables := make([]string, 0, 64)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// TableExists reports whether name is a base table in the public schema.
func (r *Reader) TableExists(ctx context.Context, name string) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = 'public'
			  AND table_type = 'BASE TABLE'
			  AND table_name = $1
		)
	`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, name).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", name, err)
	}
	return exists, nil
}

// Columns returns column metadata for a table in ordinal position order.
// Primary-key, unique and foreign-key flags come from left-joined constraint
// subqueries so non-key columns remain present with default flags.
func (r *Reader) Columns(ctx context.Context, table string) ([]Column, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable = 'YES' AS is_nullable,
			c.column_default,
			COALESCE(pk.is_pk, false) AS is_primary,
			COALESCE(uq.is_unique, false) AS is_unique,
			fk.references_table,
			fk.references_column
		FROM information_schema.columns c
		LEFT JOIN (
			SELECT DISTINCT kcu.column_name, true AS is_pk
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
			  ON tc.constraint_name = kcu.constraint_name
			 AND tc.table_schema = kcu.table_schema
			WHERE tc.constraint_type = 'PRIMARY KEY'
			  AND tc.table_schema = 'public'
			  AND tc.table_name = $1
		) pk ON c.column_name = pk.column_name
		LEFT JOIN (
			SELECT DISTINCT kcu.column_name, true AS is_unique
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
			  ON tc.constraint_name = kcu.constraint_name
			 AND tc.table_schema = kcu.table_schema
			WHERE tc.constraint_type = 'UNIQUE'
			  AND tc.table_schema = 'public'
			  AND tc.table_name = $1
		) uq ON c.column_name = uq.column_name
		LEFT JOIN (
			SELECT DISTINCT kcu.column_name,
				ccu.table_name AS references_table,
				ccu.column_name AS references_column
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
			  ON tc.constraint_name = kcu.constraint_name
			 AND tc.table_schema = kcu.table_schema
			JOIN information_schema.constraint_column_usage ccu
			  ON ccu.constraint_name = tc.constraint_name
			 AND ccu.table_schema = tc.table_schema
			WHERE tc.constraint_type = 'FOREIGN KEY'
			  AND tc.table_schema = 'public'
			  AND tc.table_name = $1
		) fk ON c.column_name = fk.column_name
		WHERE c.table_schema = 'public'
		  AND c.table_name = $1
		ORDER BY c.ordinal_position
	`

	rows, err := r.pool.Query(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("failed to get columns for %s: %w", table, err)
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var col Column
		var refTable, refColumn *string
		if err := rows.Scan(&col.Name, &col.DataType, &col.IsNullable, &col.Default,
			&col.IsPrimary, &col.IsUnique, &refTable, &refColumn); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		if refTable != nil && refColumn != nil {
			col.IsForeignKey = true
			col.ReferencesTable = *refTable
			col.ReferencesColumn = *refColumn
		}
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

// ColumnNames returns the column names of a table in ordinal position order.
func (r *Reader) ColumnNames(ctx context.Context, table string) ([]string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position
	`
	return r.scanNames(ctx, query, table)
}

// TextColumns returns the names of character-family columns, used to build
// the search clause for generic browsing.
func (r *Reader) TextColumns(ctx context.Context, table string) ([]string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		  AND data_type IN ('character varying', 'varchar', 'text', 'character', 'char')
		ORDER BY ordinal_position
	`
	return r.scanNames(ctx, query, table)
}

// PrimaryKeyColumns returns the primary-key column names of a table ordered
// by key ordinal position. Empty result means the table has no primary key.
func (r *Reader) PrimaryKeyColumns(ctx context.Context, table string) ([]string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		 AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema = 'public'
		  AND tc.table_name = $1
		ORDER BY kcu.ordinal_position
	`
	return r.scanNames(ctx, query, table)
}

// Indexes returns the index names defined on a table.
func (r *Reader) Indexes(ctx context.Context, table string) ([]string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT indexname
		FROM pg_indexes
		WHERE schemaname = 'public' AND tablename = $1
		ORDER BY indexname
	`
	return r.scanNames(ctx, query, table)
}

func (r *Reader) scanNames(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog query failed: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// ForeignKeys returns the foreign-key edges originating from one table.
func (r *Reader) ForeignKeys(ctx context.Context, table string) ([]ForeignKey, error) {
	return r.foreignKeys(ctx, &table)
}

// AllForeignKeys returns every foreign-key edge in the public schema,
// ordered by (fromTable, fromColumn).
func (r *Reader) AllForeignKeys(ctx context.Context) ([]ForeignKey, error) {
	return r.foreignKeys(ctx, nil)
}

func (r *Reader) foreignKeys(ctx context.Context, table *string) ([]ForeignKey, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT
			tc.table_name,
			kcu.column_name,
			ccu.table_name AS references_table,
			ccu.column_name AS references_column,
			tc.constraint_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		 AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
		  ON ccu.constraint_name = tc.constraint_name
		 AND ccu.table_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema = 'public'
	`
	args := []any{}
	if table != nil {
		query += ` AND tc.table_name = $1`
		args = append(args, *table)
	}
	query += ` ORDER BY tc.table_name, kcu.column_name`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get foreign keys: %w", err)
	}
	defer rows.Close()

	var fks []ForeignKey
	for rows.Next() {
		var fk ForeignKey
		if err := rows.Scan(&fk.FromTable, &fk.FromColumn, &fk.ToTable, &fk.ToColumn, &fk.ConstraintName); err != nil {
			return nil, fmt.Errorf("failed to scan foreign key: %w", err)
		}
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

// RowCount returns COUNT(*) for a table. The name must come from the
// catalog itself (ListTables or TableExists), never from raw caller input.
func (r *Reader) RowCount(ctx context.Context, table string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var count int64
	query := `SELECT COUNT(*) FROM ` + quoteIdentifier(table)
	if err := r.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rows in %s: %w", table, err)
	}
	return count, nil
}

// ColumnCounts returns the number of columns per base table in one query.
func (r *Reader) ColumnCounts(ctx context.Context) (map[string]int, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT t.table_name, COUNT(c.column_name)
		FROM information_schema.tables t
		JOIN information_schema.columns c
		  ON c.table_schema = t.table_schema
		 AND c.table_name = t.table_name
		WHERE t.table_schema = 'public'
		  AND t.table_type = 'BASE TABLE'
		GROUP BY t.table_name
		ORDER BY t.table_name
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count columns: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var name string
		var count int
		if err := rows.Scan(&name, &count); err != nil {
			return nil, fmt.Errorf("failed to scan column count: %w", err)
		}
		counts[name] = count
	}
	return counts, rows.Err()
}

// DatabaseSize returns the engine-reported size of the current database in
// human-readable form.
func (r *Reader) DatabaseSize(ctx context.Context) (string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var size string
	query := `SELECT pg_size_pretty(pg_database_size(current_database()))`
	if err := r.pool.QueryRow(ctx, query).Scan(&size); err != nil {
		return "", fmt.Errorf("failed to get database size: %w", err)
	}
	return size, nil
}

// quoteIdentifier escapes double quotes by doubling them and wraps the name
// in quotes (SQL standard).
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
