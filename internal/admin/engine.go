package admin

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/munkdata/dbadmin/internal/catalog"
)

// Engine implements the generic administration operations by orchestrating
// the catalog reader and the query builder over one connection pool. It
// holds no catalog cache: every call re-reads the catalog so concurrent
// schema changes are always observed. Row mutation carries no optimistic
// concurrency check; concurrent writers race at the database's isolation
// level.
type Engine struct {
	reader *catalog.Reader
	pool   *pgxpool.Pool
}

// NewEngine creates an administration engine.
func NewEngine(pool *pgxpool.Pool, reader *catalog.Reader) *Engine {
	return &Engine{reader: reader, pool: pool}
}

// Stats summarizes the whole database.
type Stats struct {
	TotalTables  int    `json:"totalTables"`
	TotalRows    int64  `json:"totalRows"`
	DatabaseSize string `json:"databaseSize"`
}

// BrowseResult is one page of generic table data.
type BrowseResult struct {
	Rows  []map[string]any `json:"rows"`
	Total int64            `json:"total"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
}

// ListTables returns the names of all base tables.
func (e *Engine) ListTables(ctx context.Context) ([]string, error) {
	return e.reader.ListTables(ctx)
}

// DescribeTable assembles the full descriptor for one base table. Column
// metadata, row count, index names and foreign keys come from separate
// catalog queries; their sources differ and a single mega-join would blow
// up on tables with many keys.
func (e *Engine) DescribeTable(ctx context.Context, name string) (*catalog.Table, error) {
	if err := e.requireTable(ctx, name); err != nil {
		return nil, err
	}

	columns, err := e.reader.Columns(ctx, name)
	if err != nil {
		return nil, err
	}
	rowCount, err := e.reader.RowCount(ctx, name)
	if err != nil {
		return nil, err
	}
	indexes, err := e.reader.Indexes(ctx, name)
	if err != nil {
		return nil, err
	}
	fks, err := e.reader.ForeignKeys(ctx, name)
	if err != nil {
		return nil, err
	}

	return &catalog.Table{
		Name:        name,
		RowCount:    rowCount,
		Columns:     columns,
		Indexes:     indexes,
		ForeignKeys: fks,
	}, nil
}

// Overview returns {name, rowCount, columnCount} for every base table. A
// row-count failure for one table (restrictive permissions, say) degrades
// that table's count to 0 instead of aborting the whole overview.
func (e *Engine) Overview(ctx context.Context) ([]catalog.TableOverview, error) {
	tables, err := e.reader.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	columnCounts, err := e.reader.ColumnCounts(ctx)
	if err != nil {
		return nil, err
	}

	overviews := make([]catalog.TableOverview, 0, len(tables))
	for _, name := range tables {
		count, err := e.reader.RowCount(ctx, name)
		if err != nil {
			log.Printf("[ADMIN] row count for %s failed, reporting 0: %v", name, err)
			count = 0
		}
		overviews = append(overviews, catalog.TableOverview{
			Name:        name,
			RowCount:    count,
			ColumnCount: columnCounts[name],
		})
	}
	return overviews, nil
}

// Stats returns the table count, the summed row counts and the
// engine-reported database size.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	overviews, err := e.Overview(ctx)
	if err != nil {
		return nil, err
	}
	size, err := e.reader.DatabaseSize(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{TotalTables: len(overviews), DatabaseSize: size}
	for _, o := range overviews {
		stats.TotalRows += o.RowCount
	}
	return stats, nil
}

// Relationships returns every foreign-key edge in the schema.
func (e *Engine) Relationships(ctx context.Context) ([]catalog.ForeignKey, error) {
	return e.reader.AllForeignKeys(ctx)
}

// BrowseTable returns one filtered, sorted page of a table plus the total
// matching row count. Search narrows across the table's textual columns;
// a table with no textual columns treats search as a no-op rather than an
// error.
func (e *Engine) BrowseTable(ctx context.Context, table string, opts BrowseOptions) (*BrowseResult, error) {
	if err := e.requireTable(ctx, table); err != nil {
		return nil, err
	}
	columns, err := e.reader.ColumnNames(ctx, table)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}

	var textColumns []string
	if opts.Search != "" {
		if textColumns, err = e.reader.TextColumns(ctx, table); err != nil {
			return nil, err
		}
	}

	opts = opts.normalized()
	dataSQL, countSQL, args := buildBrowseQuery(table, columns, textColumns, opts)

	rows, err := e.pool.Query(ctx, dataSQL, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to browse %s: %w", table, err)
	}
	records, err := collectRowMaps(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s rows: %w", table, err)
	}

	var total int64
	if err := e.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count %s rows: %w", table, err)
	}

	return &BrowseResult{Rows: records, Total: total, Page: opts.Page, Limit: opts.Limit}, nil
}

// RunGuardedQuery executes an ad-hoc statement after the SELECT-only policy
// check. Database errors propagate verbatim.
func (e *Engine) RunGuardedQuery(ctx context.Context, sql string) ([]map[string]any, error) {
	guarded, err := guardQuery(sql)
	if err != nil {
		return nil, err
	}
	rows, err := e.pool.Query(ctx, guarded)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return collectRowMaps(rows)
}

// PrimaryKeyColumns returns the table's primary-key columns in key ordinal
// order.
func (e *Engine) PrimaryKeyColumns(ctx context.Context, table string) ([]string, error) {
	if err := e.requireTable(ctx, table); err != nil {
		return nil, err
	}
	return e.reader.PrimaryKeyColumns(ctx, table)
}

// CreateRecord inserts one row. When the table has a single-column primary
// key the generated id is returned; otherwise the id is nil.
func (e *Engine) CreateRecord(ctx context.Context, table string, data map[string]any) (any, error) {
	pkCols, err := e.prepareMutation(ctx, table, data)
	if err != nil {
		return nil, err
	}

	sql, args, err := buildInsertQuery(table, data, pkCols)
	if err != nil {
		return nil, err
	}

	if len(pkCols) == 1 {
		var id any
		if err := e.pool.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to insert into %s: %w", table, err)
		}
		return id, nil
	}
	if _, err := e.pool.Exec(ctx, sql, args...); err != nil {
		return nil, fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return nil, nil
}

// UpdateRecord updates the row addressed by the full primary-key tuple.
// Primary-key columns in data are ignored so row identity never drifts;
// if nothing else remains the update fails with ErrNoUpdatableColumns.
func (e *Engine) UpdateRecord(ctx context.Context, table string, primaryKey, data map[string]any) error {
	pkCols, err := e.prepareMutation(ctx, table, data, primaryKey)
	if err != nil {
		return err
	}

	sql, args, err := buildUpdateQuery(table, pkCols, primaryKey, data)
	if err != nil {
		return err
	}
	if _, err := e.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to update %s: %w", table, err)
	}
	return nil
}

// DeleteRecord deletes the rows matching the full primary-key tuple.
func (e *Engine) DeleteRecord(ctx context.Context, table string, primaryKey map[string]any) error {
	pkCols, err := e.prepareMutation(ctx, table, primaryKey)
	if err != nil {
		return err
	}

	sql, args, err := buildDeleteQuery(table, pkCols, primaryKey)
	if err != nil {
		return err
	}
	if _, err := e.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	return nil
}

// requireTable rejects names that are not base tables in the catalog.
// Caller-supplied names never reach generated SQL without passing here.
func (e *Engine) requireTable(ctx context.Context, name string) error {
	exists, err := e.reader.TableExists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	return nil
}

// prepareMutation validates the table and every caller-supplied column name
// against a fresh catalog read, then returns the primary-key columns.
func (e *Engine) prepareMutation(ctx context.Context, table string, payloads ...map[string]any) ([]string, error) {
	if err := e.requireTable(ctx, table); err != nil {
		return nil, err
	}
	columns, err := e.reader.ColumnNames(ctx, table)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(columns))
	for _, col := range columns {
		known[col] = true
	}
	for _, payload := range payloads {
		for col := range payload {
			if !known[col] {
				return nil, fmt.Errorf("unknown column %q in table %s", col, table)
			}
		}
	}
	return e.reader.PrimaryKeyColumns(ctx, table)
}

// collectRowMaps drains rows into generic column-name keyed maps.
func collectRowMaps(rows pgx.Rows) ([]map[string]any, error) {
	records, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []map[string]any{}
	}
	return records, nil
}
