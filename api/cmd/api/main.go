package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/getsentry/sentry-go"
	"github.com/holiman/uint256"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/spacesquad/mintgate/api/config"
	"github.com/spacesquad/mintgate/api/handlers"
	"github.com/spacesquad/mintgate/api/metrics"
	"github.com/spacesquad/mintgate/collector"
	"github.com/spacesquad/mintgate/distributor"
	"github.com/spacesquad/mintgate/distributor/pgstore"
	"github.com/spacesquad/mintgate/entitlement"
	"github.com/spacesquad/mintgate/ledger"
	"github.com/spacesquad/mintgate/pharmacy"
	"github.com/spacesquad/mintgate/utils/pkg/logger"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultListenAddr = "0.0.0.0:8080"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	listenFlag := flag.String("listen", defaultListenAddr, "HTTP listen address")
	shutdownTimeoutFlag := flag.Duration("shutdown-timeout", 30*time.Second, "Maximum time to wait for in-flight requests during graceful shutdown")

	// Sale configuration
	collectionSizeFlag := flag.Uint64("collection-size", 0, "Total collection size (required)")
	maxPerTxFlag := flag.Uint64("max-per-tx", 10, "Maximum tokens minted per call")
	escrowAccountFlag := flag.String("escrow-account", "", "Escrow account address for payment settlement (required)")
	whitelistFlag := flag.String("whitelist", "", "Path to the whitelist JSON dataset (address -> quota)")
	pollIntervalFlag := flag.Duration("poll-interval", 15*time.Second, "Sale status poll interval")

	// Seeding (fresh stores only)
	seedFlag := flag.Bool("seed-state", false, "Seed the store with the sale parameters below before serving")
	releaseDateFlag := flag.String("release-date", "", "Public sale release date (RFC3339, required with --seed-state)")
	wlReleaseDateFlag := flag.String("wl-release-date", "", "Whitelist sale release date (RFC3339, required with --seed-state)")
	itemPriceFlag := flag.String("item-price", "0", "Item price in wei (decimal)")
	freeMintContingentFlag := flag.Uint64("free-mint-contingent", 0, "Reserved free-mint contingent")
	collectorAccountFlag := flag.String("collector-account", "", "Account that receives sale proceeds (required with --seed-state)")

	// Pharmacy (optional; enabled when a pill price is set)
	pillPriceFlag := flag.String("pill-price", "", "Pill price in wei (decimal); enables the pharmacy endpoints")
	pillSupplyCapFlag := flag.Uint64("pill-supply-cap", 0, "Total pill supply cap")
	maxPillsPerTxFlag := flag.Uint64("max-pills-per-tx", 20, "Maximum pills purchased per call")
	pillClaimDeadlineFlag := flag.String("pill-claim-deadline", "", "Pill claim deadline (RFC3339)")

	// Collector (optional; enabled when beneficiaries are set)
	beneficiariesFlag := flag.String("beneficiaries", "", "Comma-separated beneficiary addresses; enables the distribute endpoint")
	communityWalletFlag := flag.String("community-wallet", "", "Community wallet address")
	donationWalletFlag := flag.String("donation-wallet", "", "Donation wallet address")
	communityCapFlag := flag.String("community-cap", "0", "Community wallet balance cap in wei (decimal)")

	flag.Parse()

	// Local development convenience; missing files are fine.
	_ = godotenv.Load()

	log := logger.New(*verboseFlag)
	log.Info("starting mint gate api", "version", version, "commit", commit, "date", date)

	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         dsn,
			Environment: os.Getenv("SENTRY_ENVIRONMENT"),
			Release:     version,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	if *collectionSizeFlag == 0 {
		return fmt.Errorf("--collection-size is required")
	}
	escrow, err := parseAddr(*escrowAccountFlag, "--escrow-account")
	if err != nil {
		return err
	}

	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Store: PostgreSQL when configured, in-memory otherwise.
	var store distributor.Store
	if os.Getenv("POSTGRES_DB") != "" {
		if err := config.LoadPostgres(log); err != nil {
			return err
		}
		defer config.ClosePostgres()
		store, err = pgstore.New(config.PgPool)
		if err != nil {
			return err
		}
	} else {
		log.Warn("POSTGRES_DB not set, using in-memory store; sale state will not survive restarts")
		store = distributor.NewMemoryStore(distributor.SaleState{})
	}

	var whitelist entitlement.Whitelist
	if *whitelistFlag != "" {
		whitelist, err = entitlement.LoadWhitelist(*whitelistFlag)
		if err != nil {
			return err
		}
		log.Info("loaded whitelist", "path", *whitelistFlag, "entries", len(whitelist))
	}

	if *seedFlag {
		if err := seedStore(ctx, log, store, whitelist, seedParams{
			releaseDate:        *releaseDateFlag,
			wlReleaseDate:      *wlReleaseDateFlag,
			itemPrice:          *itemPriceFlag,
			freeMintContingent: *freeMintContingentFlag,
			collectorAccount:   *collectorAccountFlag,
		}); err != nil {
			return err
		}
	}

	pay := ledger.NewPayLedger()
	tokens := ledger.NewTokenLedger(nil, parseTimeOrZero(*pillClaimDeadlineFlag))

	dist, err := distributor.New(distributor.Config{
		Logger:           log,
		Store:            store,
		Tokens:           tokens,
		Payments:         pay,
		Account:          escrow,
		CollectionSize:   *collectionSizeFlag,
		MaxIssuancePerTx: *maxPerTxFlag,
	})
	if err != nil {
		return err
	}

	status, err := dist.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to read sale state: %w", err)
	}
	log.Info("sale state loaded",
		"phase", status.Phase.String(),
		"totalMinted", status.TotalMinted,
		"releaseDate", status.ReleaseDate,
		"wlReleaseDate", status.WLReleaseDate,
	)

	var pharm *pharmacy.Pharmacy
	if *pillPriceFlag != "" {
		price, err := uint256.FromDecimal(*pillPriceFlag)
		if err != nil {
			return fmt.Errorf("invalid --pill-price: %w", err)
		}
		deadline, err := time.Parse(time.RFC3339, *pillClaimDeadlineFlag)
		if err != nil {
			return fmt.Errorf("invalid --pill-claim-deadline: %w", err)
		}
		pharm, err = pharmacy.New(pharmacy.Config{
			Logger:        log,
			Payments:      pay,
			Collection:    tokens,
			Pills:         ledger.NewTokenLedger(nil, time.Time{}),
			Account:       escrow,
			Collector:     status.Collector,
			PillPrice:     price,
			SupplyCap:     *pillSupplyCapFlag,
			MaxPillsPerTx: *maxPillsPerTxFlag,
			ClaimDeadline: deadline,
		})
		if err != nil {
			return err
		}
		log.Info("pharmacy enabled", "pillPrice", price.Dec(), "supplyCap", *pillSupplyCapFlag)
	}

	var coll *collector.Collector
	if *beneficiariesFlag != "" {
		coll, err = buildCollector(log, pay, status.Collector,
			*beneficiariesFlag, *communityWalletFlag, *donationWalletFlag, *communityCapFlag)
		if err != nil {
			return err
		}
		log.Info("collector enabled", "account", status.Collector.Hex())
	}

	adminTokens, err := parseAdminTokens(os.Getenv("ADMIN_TOKENS"))
	if err != nil {
		return err
	}
	if len(adminTokens) == 0 {
		log.Warn("ADMIN_TOKENS not set, admin endpoints will reject all requests")
	}

	server, err := handlers.New(handlers.Config{
		Logger:      log,
		Distributor: dist,
		Pharmacy:    pharm,
		Collector:   coll,
		Whitelist:   whitelist,
		AdminTokens: adminTokens,
		Version:     handlers.VersionInfo{Version: version, Commit: commit, Date: date},
	})
	if err != nil {
		return err
	}

	watcher, err := distributor.NewWatcher(distributor.WatcherConfig{
		Logger:       log,
		Distributor:  dist,
		PollInterval: *pollIntervalFlag,
		OnChange: func(s distributor.Status) {
			metrics.RecordStatus(int(s.Phase), s.TotalMinted, s.Paused)
			log.Info("sale status changed",
				"phase", s.Phase.String(),
				"paused", s.Paused,
				"totalMinted", s.TotalMinted,
			)
		},
	})
	if err != nil {
		return err
	}
	watcher.Start(ctx)

	httpServer := &http.Server{
		Addr:    *listenFlag,
		Handler: server.Router(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP server listening", "addr", *listenFlag)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, draining in-flight requests", "timeout", *shutdownTimeoutFlag)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), *shutdownTimeoutFlag)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("mint gate api stopped")
	return nil
}

type seedParams struct {
	releaseDate        string
	wlReleaseDate      string
	itemPrice          string
	freeMintContingent uint64
	collectorAccount   string
}

// seedStore initializes a fresh store. The root hash comes from the loaded
// whitelist when one is present; it can be published later via the admin API
// otherwise.
func seedStore(ctx context.Context, log *slog.Logger, store distributor.Store, whitelist entitlement.Whitelist, p seedParams) error {
	releaseDate, err := time.Parse(time.RFC3339, p.releaseDate)
	if err != nil {
		return fmt.Errorf("invalid --release-date: %w", err)
	}
	wlReleaseDate, err := time.Parse(time.RFC3339, p.wlReleaseDate)
	if err != nil {
		return fmt.Errorf("invalid --wl-release-date: %w", err)
	}
	price, err := uint256.FromDecimal(p.itemPrice)
	if err != nil {
		return fmt.Errorf("invalid --item-price: %w", err)
	}
	collectorAddr, err := parseAddr(p.collectorAccount, "--collector-account")
	if err != nil {
		return err
	}

	var root common.Hash
	if len(whitelist) > 0 {
		tree, err := whitelist.Tree()
		if err != nil {
			return err
		}
		root = tree.Root()
	}

	state := distributor.SaleState{
		RootHash:           root,
		ItemPrice:          price,
		ReleaseDate:        releaseDate,
		WLReleaseDate:      wlReleaseDate,
		FreeMintContingent: p.freeMintContingent,
		Collector:          collectorAddr,
	}
	if err := distributor.SeedState(ctx, store, state); err != nil {
		return err
	}
	log.Info("seeded sale state",
		"root", root.Hex(),
		"itemPrice", price.Dec(),
		"releaseDate", releaseDate,
		"wlReleaseDate", wlReleaseDate,
		"freeMintContingent", p.freeMintContingent,
	)
	return nil
}

func buildCollector(log *slog.Logger, pay *ledger.PayLedger, account common.Address, beneficiaries, community, donation, capStr string) (*collector.Collector, error) {
	var addrs []common.Address
	for _, s := range strings.Split(beneficiaries, ",") {
		addr, err := parseAddr(strings.TrimSpace(s), "--beneficiaries")
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
	}
	communityAddr, err := parseAddr(community, "--community-wallet")
	if err != nil {
		return nil, err
	}
	donationAddr, err := parseAddr(donation, "--donation-wallet")
	if err != nil {
		return nil, err
	}
	communityCap, err := uint256.FromDecimal(capStr)
	if err != nil {
		return nil, fmt.Errorf("invalid --community-cap: %w", err)
	}
	return collector.New(collector.Config{
		Logger:          log,
		Payments:        pay,
		Account:         account,
		Beneficiaries:   addrs,
		CommunityWallet: communityAddr,
		DonationWallet:  donationAddr,
		CommunityCap:    communityCap,
	})
}

// parseAdminTokens parses the ADMIN_TOKENS env var: a comma-separated list of
// token=cap+cap entries, e.g. "s3cret=admin+pauser,ops=issuer+treasurer".
func parseAdminTokens(raw string) (map[string]distributor.Caps, error) {
	if raw == "" {
		return nil, nil
	}
	tokens := make(map[string]distributor.Caps)
	for _, entry := range strings.Split(raw, ",") {
		token, capList, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok || token == "" {
			return nil, fmt.Errorf("invalid ADMIN_TOKENS entry %q", entry)
		}
		var caps distributor.Caps
		for _, name := range strings.Split(capList, "+") {
			switch strings.TrimSpace(name) {
			case "admin":
				caps |= distributor.CapAdmin
			case "pauser":
				caps |= distributor.CapPauser
			case "issuer":
				caps |= distributor.CapIssuer
			case "treasurer":
				caps |= distributor.CapTreasurer
			default:
				return nil, fmt.Errorf("unknown capability %q in ADMIN_TOKENS", name)
			}
		}
		tokens[token] = caps
	}
	return tokens, nil
}

func parseAddr(s, flagName string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", flagName, s)
	}
	return common.HexToAddress(s), nil
}

func parseTimeOrZero(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
