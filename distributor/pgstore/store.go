// Package pgstore persists distributor state in PostgreSQL. The sale state is
// a singleton row; per-address claim counters live in their own table. Each
// Update runs in one database transaction, so the all-or-nothing contract of
// the store interface maps directly onto commit and rollback.
package pgstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver with database/sql
	"github.com/pressly/goose/v3"

	"github.com/spacesquad/mintgate/distributor"
)

//go:embed migrations/*.sql
var EmbedMigrations embed.FS

// RunMigrations applies the schema migrations using goose.
func RunMigrations(log *slog.Logger, connStr string) error {
	log.Info("running distributor store migrations")

	goose.SetBaseFS(EmbedMigrations)

	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info("distributor store migrations completed")
	return nil
}

// Store is the PostgreSQL-backed distributor store.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, errors.New("pgstore: pool is required")
	}
	return &Store{pool: pool}, nil
}

// Update runs fn inside a read-write transaction and commits only if fn
// succeeds.
func (s *Store) Update(ctx context.Context, fn func(tx distributor.Tx) error) error {
	return s.run(ctx, pgx.TxOptions{}, fn)
}

// View runs fn inside a read-only transaction.
func (s *Store) View(ctx context.Context, fn func(tx distributor.Tx) error) error {
	return s.run(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly}, fn)
}

func (s *Store) run(ctx context.Context, opts pgx.TxOptions, fn func(tx distributor.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("pgstore: failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(&pgTx{ctx: ctx, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("pgstore: failed to commit transaction: %w", err)
	}
	return nil
}

type pgTx struct {
	ctx context.Context
	tx  pgx.Tx
}

func (t *pgTx) State() (distributor.SaleState, error) {
	var (
		state       distributor.SaleState
		totalMinted int64
		rootHash    []byte
		itemPrice   string
		contingent  int64
		collectorB  []byte
	)
	err := t.tx.QueryRow(t.ctx, `
		SELECT total_minted, root_hash, paused, item_price,
		       release_date, wl_release_date, free_mint_claim_deadline,
		       free_mint_contingent, collector
		FROM sale_state WHERE id = 1
	`).Scan(&totalMinted, &rootHash, &state.Paused, &itemPrice,
		&state.ReleaseDate, &state.WLReleaseDate, &state.FreeMintClaimDeadline,
		&contingent, &collectorB)
	if err != nil {
		return distributor.SaleState{}, fmt.Errorf("pgstore: failed to load sale state: %w", err)
	}

	price, err := uint256.FromDecimal(itemPrice)
	if err != nil {
		return distributor.SaleState{}, fmt.Errorf("pgstore: invalid stored item price %q: %w", itemPrice, err)
	}

	state.TotalMinted = uint64(totalMinted)
	state.RootHash = common.BytesToHash(rootHash)
	state.ItemPrice = price
	state.FreeMintContingent = uint64(contingent)
	state.Collector = common.BytesToAddress(collectorB)
	return state, nil
}

func (t *pgTx) SetState(s distributor.SaleState) error {
	price := "0"
	if s.ItemPrice != nil {
		price = s.ItemPrice.Dec()
	}
	tag, err := t.tx.Exec(t.ctx, `
		UPDATE sale_state SET
			total_minted = $1,
			root_hash = $2,
			paused = $3,
			item_price = $4,
			release_date = $5,
			wl_release_date = $6,
			free_mint_claim_deadline = $7,
			free_mint_contingent = $8,
			collector = $9
		WHERE id = 1
	`, int64(s.TotalMinted), s.RootHash.Bytes(), s.Paused, price,
		s.ReleaseDate.UTC(), s.WLReleaseDate.UTC(), s.FreeMintClaimDeadline.UTC(),
		int64(s.FreeMintContingent), s.Collector.Bytes())
	if err != nil {
		return fmt.Errorf("pgstore: failed to store sale state: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return errors.New("pgstore: sale state singleton row is missing")
	}
	return nil
}

func (t *pgTx) Claims(addr common.Address) (distributor.Claims, error) {
	var (
		claims    distributor.Claims
		whitelist int64
		freeMint  int64
	)
	err := t.tx.QueryRow(t.ctx, `
		SELECT whitelist_claimed, free_mint_claimed, free_claimed
		FROM address_claims WHERE address = $1
	`, addr.Bytes()).Scan(&whitelist, &freeMint, &claims.FreeClaimed)
	if errors.Is(err, pgx.ErrNoRows) {
		return distributor.Claims{}, nil
	}
	if err != nil {
		return distributor.Claims{}, fmt.Errorf("pgstore: failed to load claims for %s: %w", addr, err)
	}
	claims.WhitelistClaimed = uint64(whitelist)
	claims.FreeMintClaimed = uint64(freeMint)
	return claims, nil
}

func (t *pgTx) SetClaims(addr common.Address, c distributor.Claims) error {
	_, err := t.tx.Exec(t.ctx, `
		INSERT INTO address_claims (address, whitelist_claimed, free_mint_claimed, free_claimed)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (address) DO UPDATE SET
			whitelist_claimed = EXCLUDED.whitelist_claimed,
			free_mint_claimed = EXCLUDED.free_mint_claimed,
			free_claimed = EXCLUDED.free_claimed
	`, addr.Bytes(), int64(c.WhitelistClaimed), int64(c.FreeMintClaimed), c.FreeClaimed)
	if err != nil {
		return fmt.Errorf("pgstore: failed to store claims for %s: %w", addr, err)
	}
	return nil
}

// WaitForReady pings the database until it responds or the timeout lapses.
func WaitForReady(ctx context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		if err := pool.Ping(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("pgstore: database not ready: %w", ctx.Err())
		case <-time.After(250 * time.Millisecond):
		}
	}
}
