package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spacesquad/mintgate/distributor/pgstore"
)

// PgPool is the global PostgreSQL connection pool
var PgPool *pgxpool.Pool

// PgConfig holds the PostgreSQL configuration
type PgConfig struct {
	Host     string
	Port     string
	Database string
	Username string
	Password string
}

// pgCfg holds the parsed configuration
var pgCfg PgConfig

// LoadPostgres initializes the PostgreSQL connection pool
func LoadPostgres(log *slog.Logger) error {
	pgCfg.Host = os.Getenv("POSTGRES_HOST")
	if pgCfg.Host == "" {
		pgCfg.Host = "localhost"
	}

	pgCfg.Port = os.Getenv("POSTGRES_PORT")
	if pgCfg.Port == "" {
		pgCfg.Port = "5432"
	}

	pgCfg.Database = os.Getenv("POSTGRES_DB")
	if pgCfg.Database == "" {
		return fmt.Errorf("POSTGRES_DB is required")
	}

	pgCfg.Username = os.Getenv("POSTGRES_USER")
	if pgCfg.Username == "" {
		return fmt.Errorf("POSTGRES_USER is required")
	}

	pgCfg.Password = os.Getenv("POSTGRES_PASSWORD")
	if pgCfg.Password == "" {
		return fmt.Errorf("POSTGRES_PASSWORD is required")
	}

	sslMode := os.Getenv("POSTGRES_SSLMODE")
	if sslMode == "" {
		sslMode = "disable"
	}

	connStr := ConnStr(sslMode)

	log.Info("connecting to PostgreSQL",
		"host", pgCfg.Host, "port", pgCfg.Port,
		"database", pgCfg.Database, "username", pgCfg.Username)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return fmt.Errorf("failed to parse postgres config: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping postgres: %w", err)
	}

	PgPool = pool
	log.Info("connected to PostgreSQL")

	// Run migrations only if explicitly enabled
	if os.Getenv("POSTGRES_RUN_MIGRATIONS") == "true" {
		if err := pgstore.RunMigrations(log, connStr); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return nil
}

// ConnStr builds the PostgreSQL connection string from the loaded config.
func ConnStr(sslMode string) string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		pgCfg.Username, pgCfg.Password, pgCfg.Host, pgCfg.Port, pgCfg.Database, sslMode,
	)
}

// ClosePostgres closes the PostgreSQL connection pool
func ClosePostgres() {
	if PgPool != nil {
		PgPool.Close()
	}
}
