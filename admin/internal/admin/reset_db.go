package admin

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// ResetDB drops the sale store tables (sale_state, address_claims) and the
// goose version table so the schema can be recreated from scratch.
func ResetDB(log *slog.Logger, cfg PgConfig, dryRun, skipConfirm bool) error {
	db, err := openPgDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// Only tables owned by the sale store are touched.
	candidates := []string{"address_claims", "sale_state", "goose_db_version"}

	var tables []string
	for _, name := range candidates {
		var exists bool
		err := db.QueryRow(
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)`,
			name,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check table %s: %w", name, err)
		}
		if exists {
			tables = append(tables, name)
		}
	}

	if len(tables) == 0 {
		fmt.Println("No sale store tables found")
		return nil
	}

	fmt.Printf("WARNING: This will DROP %d table(s) from database '%s':\n\n", len(tables), cfg.Database)
	for _, table := range tables {
		fmt.Printf("  - %s\n", table)
	}

	if dryRun {
		fmt.Println("\n[DRY RUN] Would drop the above tables")
		return nil
	}

	if !skipConfirm {
		fmt.Printf("\nThis is a DESTRUCTIVE operation that cannot be undone!\n")
		fmt.Printf("Type 'yes' to confirm: ")

		reader := bufio.NewReader(os.Stdin)
		response, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}

		response = strings.TrimSpace(strings.ToLower(response))
		if response != "yes" {
			fmt.Printf("\nConfirmation failed. Operation cancelled.\n")
			return nil
		}
		fmt.Println()
	}

	fmt.Println("Dropping tables...")
	for _, table := range tables {
		if _, err := db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
		fmt.Printf("  dropped %s\n", table)
	}

	fmt.Printf("\nSuccessfully dropped %d table(s)\n", len(tables))
	log.Info("sale store reset", "tables", len(tables))
	return nil
}
