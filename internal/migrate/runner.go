package migrate

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Runner brings the auxiliary feature-schemas into existence at process
// start. Each group runs in its own transaction and a failure rolls back
// and is logged without touching the other groups, so a broken optional
// feature-schema never prevents the application from starting. All DDL is
// additive and idempotent; running the Runner twice is a no-op.
type Runner struct {
	pool *pgxpool.Pool
}

// NewRunner creates a schema-evolution runner over the given pool. Taking
// the pool explicitly keeps the runner invocable from tests and from the
// migrate subcommand without a full process boot.
func NewRunner(pool *pgxpool.Pool) *Runner {
	return &Runner{pool: pool}
}

// Group is one independently committed bundle of DDL belonging to a
// functional area, plus an optional one-time data-migration step that runs
// inside the same transaction.
type Group struct {
	Name       string
	Statements []string
	Post       func(ctx context.Context, tx pgx.Tx) error
}

// GroupResult records the outcome of one group.
type GroupResult struct {
	Name string
	Err  error
}

// querier is the subset of pgx.Tx the probes need.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Run executes every feature-schema group sequentially and reports the
// per-group outcomes. It never returns a process-fatal error.
func (r *Runner) Run(ctx context.Context) []GroupResult {
	return r.RunGroups(ctx, FeatureGroups())
}

// RunGroups executes the given groups sequentially, each in its own
// transaction. Exported alongside FeatureGroups so tests can run a specific
// group set deterministically.
func (r *Runner) RunGroups(ctx context.Context, groups []Group) []GroupResult {
	// UUID generation for the DDL defaults below. Idempotent; a failure is
	// logged and the groups still run, since an existing database may
	// already provide gen_random_uuid.
	if _, err := r.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS "pgcrypto"`); err != nil {
		log.Printf("[MIGRATE] failed to enable pgcrypto: %v", err)
	}

	results := make([]GroupResult, 0, len(groups))
	for _, group := range groups {
		err := r.runGroup(ctx, group)
		if err != nil {
			log.Printf("[MIGRATE] group %s rolled back: %v", group.Name, err)
		} else {
			log.Printf("[MIGRATE] group %s committed", group.Name)
		}
		results = append(results, GroupResult{Name: group.Name, Err: err})
	}
	return results
}

func (r *Runner) runGroup(ctx context.Context, group Group) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, stmt := range group.Statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("statement failed: %w", err)
		}
	}
	if group.Post != nil {
		if err := group.Post(ctx, tx); err != nil {
			return fmt.Errorf("data migration failed: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// tableExists probes the catalog for a base table. Used by data-migration
// steps that must behave on both fresh and legacy databases.
func tableExists(ctx context.Context, q querier, table string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = 'public'
			  AND table_type = 'BASE TABLE'
			  AND table_name = $1
		)
	`
	var exists bool
	if err := q.QueryRow(ctx, query, table).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to probe table %s: %w", table, err)
	}
	return exists, nil
}

// columnExists probes the catalog for one column.
func columnExists(ctx context.Context, q querier, table, column string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.columns
			WHERE table_schema = 'public'
			  AND table_name = $1
			  AND column_name = $2
		)
	`
	var exists bool
	if err := q.QueryRow(ctx, query, table, column).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to probe column %s.%s: %w", table, column, err)
	}
	return exists, nil
}
