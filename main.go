package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/munkdata/dbadmin/internal/admin"
	"github.com/munkdata/dbadmin/internal/api"
	"github.com/munkdata/dbadmin/internal/catalog"
	"github.com/munkdata/dbadmin/internal/config"
	"github.com/munkdata/dbadmin/internal/migrate"
)

var rootCmd = &cobra.Command{
	Use:   "dbadmin",
	Short: "Runtime administration service for a Postgres schema",
	Long: `dbadmin introspects and safely mutates an arbitrary Postgres schema at
runtime: generic table browsing, row-level create/update/delete, a guarded
ad-hoc SELECT path, and an idempotent startup schema-evolution runner.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the schema migrations and start the admin HTTP server",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run the schema-evolution groups once and exit",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func connect(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	// Feature-schemas first. Per-group failures are logged by the runner
	// and never block startup.
	migrate.NewRunner(pool).Run(ctx)

	reader := catalog.NewReader(pool, cfg.QueryTimeout)
	engine := admin.NewEngine(pool, reader)
	handler := api.NewHandler(engine)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        mux,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Println("Shutting down...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
		handler.Stop()
		cancel()
	}()

	fmt.Printf("Admin API listening at http://localhost:%s\n", cfg.Port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx := context.Background()
	pool, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	results := migrate.NewRunner(pool).Run(ctx)
	for _, result := range results {
		if result.Err != nil {
			fmt.Printf("%-16s FAILED: %v\n", result.Name, result.Err)
		} else {
			fmt.Printf("%-16s ok\n", result.Name)
		}
	}
	// Per-group failures are not fatal; the exit code stays zero so a
	// broken optional feature-schema never blocks deployment scripts.
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
