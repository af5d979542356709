package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/spacesquad/mintgate/admin/internal/admin"
	"github.com/spacesquad/mintgate/utils/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")

	// PostgreSQL configuration
	pgHostFlag := flag.String("pg-host", "localhost", "PostgreSQL host (or set POSTGRES_HOST env var)")
	pgPortFlag := flag.String("pg-port", "5432", "PostgreSQL port (or set POSTGRES_PORT env var)")
	pgDatabaseFlag := flag.String("pg-database", "", "PostgreSQL database name (or set POSTGRES_DB env var)")
	pgUsernameFlag := flag.String("pg-username", "", "PostgreSQL username (or set POSTGRES_USER env var)")
	pgPasswordFlag := flag.String("pg-password", "", "PostgreSQL password (or set POSTGRES_PASSWORD env var)")
	pgSSLModeFlag := flag.String("pg-sslmode", "disable", "PostgreSQL SSL mode (or set POSTGRES_SSLMODE env var)")

	// Commands
	buildTreeFlag := flag.Bool("build-tree", false, "Build the entitlement tree from a whitelist dataset and write the proof artifact")
	publishRootFlag := flag.Bool("publish-root", false, "Publish an entitlement root to the running API")
	pgMigrateFlag := flag.Bool("pg-migrate", false, "Run sale store database migrations using goose")
	pgMigrateDownFlag := flag.Bool("pg-migrate-down", false, "Roll back the last sale store database migration")
	pgMigrateStatusFlag := flag.Bool("pg-migrate-status", false, "Show sale store database migration status")
	resetDBFlag := flag.Bool("reset-db", false, "Drop all sale store tables")
	dryRunFlag := flag.Bool("dry-run", false, "Dry run mode - show what would be done without actually executing")
	yesFlag := flag.Bool("yes", false, "Skip confirmation prompt (use with caution)")

	// Command options
	whitelistFlag := flag.String("whitelist", "", "Path to the whitelist JSON dataset (required for --build-tree)")
	outFlag := flag.String("out", "tree.json", "Output path for the tree artifact")
	apiURLFlag := flag.String("api-url", "http://localhost:8080", "Base URL of the running API (or set API_URL env var)")
	adminTokenFlag := flag.String("admin-token", "", "Admin bearer token (or set ADMIN_TOKEN env var)")
	rootFlag := flag.String("root", "", "Root hash to publish (defaults to the root of --whitelist when set)")

	flag.Parse()

	// Local development convenience; missing files are fine.
	_ = godotenv.Load()

	log := logger.New(*verboseFlag)

	// Override PostgreSQL flags with environment variables if set
	if env := os.Getenv("POSTGRES_HOST"); env != "" {
		*pgHostFlag = env
	}
	if env := os.Getenv("POSTGRES_PORT"); env != "" {
		*pgPortFlag = env
	}
	if env := os.Getenv("POSTGRES_DB"); env != "" {
		*pgDatabaseFlag = env
	}
	if env := os.Getenv("POSTGRES_USER"); env != "" {
		*pgUsernameFlag = env
	}
	if env := os.Getenv("POSTGRES_PASSWORD"); env != "" {
		*pgPasswordFlag = env
	}
	if env := os.Getenv("POSTGRES_SSLMODE"); env != "" {
		*pgSSLModeFlag = env
	}
	if env := os.Getenv("API_URL"); env != "" {
		*apiURLFlag = env
	}
	if env := os.Getenv("ADMIN_TOKEN"); env != "" {
		*adminTokenFlag = env
	}

	pgCfg := admin.PgConfig{
		Host:     *pgHostFlag,
		Port:     *pgPortFlag,
		Database: *pgDatabaseFlag,
		Username: *pgUsernameFlag,
		Password: *pgPasswordFlag,
		SSLMode:  *pgSSLModeFlag,
	}

	// Execute commands
	if *buildTreeFlag {
		if *whitelistFlag == "" {
			return fmt.Errorf("--whitelist is required for --build-tree")
		}
		artifact, err := admin.BuildTree(log, *whitelistFlag, *outFlag, *dryRunFlag)
		if err != nil {
			return err
		}
		if *publishRootFlag {
			if *adminTokenFlag == "" {
				return fmt.Errorf("--admin-token is required for --publish-root")
			}
			return admin.PublishRoot(context.Background(), log, *apiURLFlag, *adminTokenFlag, artifact.Root, *dryRunFlag)
		}
		return nil
	}

	if *publishRootFlag {
		if *rootFlag == "" {
			return fmt.Errorf("--root is required for --publish-root (or combine with --build-tree)")
		}
		if *adminTokenFlag == "" {
			return fmt.Errorf("--admin-token is required for --publish-root")
		}
		return admin.PublishRoot(context.Background(), log, *apiURLFlag, *adminTokenFlag, *rootFlag, *dryRunFlag)
	}

	if *pgMigrateFlag {
		if pgCfg.Database == "" {
			return fmt.Errorf("--pg-database is required for --pg-migrate")
		}
		return admin.PgMigrateUp(log, pgCfg)
	}

	if *pgMigrateDownFlag {
		if pgCfg.Database == "" {
			return fmt.Errorf("--pg-database is required for --pg-migrate-down")
		}
		return admin.PgMigrateDown(log, pgCfg)
	}

	if *pgMigrateStatusFlag {
		if pgCfg.Database == "" {
			return fmt.Errorf("--pg-database is required for --pg-migrate-status")
		}
		return admin.PgMigrateStatus(log, pgCfg)
	}

	if *resetDBFlag {
		if pgCfg.Database == "" {
			return fmt.Errorf("--pg-database is required for --reset-db")
		}
		return admin.ResetDB(log, pgCfg, *dryRunFlag, *yesFlag)
	}

	return nil
}
