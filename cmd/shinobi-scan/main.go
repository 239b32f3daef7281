// shinobi-scan - reference CLI for note discovery and deposit commitment
// derivation against a shinobi privacy pool.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"github.com/shinobi-cash/shinobi-sdk/internal/discovery"
	"github.com/shinobi-cash/shinobi-sdk/internal/storage"
	"github.com/shinobi-cash/shinobi-sdk/internal/zkp"
	shinobicommon "github.com/shinobi-cash/shinobi-sdk/pkg/common"
)

const (
	version = "0.1.0"
	banner  = `
  _____ _     _             _     _
 / ____| |   (_)           | |   (_)
| (___ | |__  _ _ __   ___ | |__  _
 \___ \| '_ \| | '_ \ / _ \| '_ \| |
 ____) | | | | | | | | (_) | |_) | |
|_____/|_| |_|_|_| |_|\___/|_.__/|_|

  shinobi-scan v%s
  Privacy pool note discovery
`
)

// Config holds CLI configuration.
type Config struct {
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string

	UserKey     string
	PoolAddress string
	IndexerURL  string

	PageSize int
	MaxPages int
}

func main() {
	cfg := parseFlags()

	fmt.Printf(banner, version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nCancelling scan...")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.DBHost, "db-host", "localhost", "PostgreSQL host")
	flag.IntVar(&cfg.DBPort, "db-port", 5432, "PostgreSQL port")
	flag.StringVar(&cfg.DBUser, "db-user", "shinobi", "PostgreSQL user")
	flag.StringVar(&cfg.DBPassword, "db-password", "", "PostgreSQL password")
	flag.StringVar(&cfg.DBName, "db-name", "shinobi", "PostgreSQL database name")

	flag.StringVar(&cfg.UserKey, "key", "", "account key, decimal field element (required)")
	flag.StringVar(&cfg.PoolAddress, "pool", "", "pool contract address (required)")
	flag.StringVar(&cfg.IndexerURL, "indexer", "http://127.0.0.1:8080", "activity indexer base URL")

	flag.IntVar(&cfg.PageSize, "page-size", 100, "activities requested per page")
	flag.IntVar(&cfg.MaxPages, "max-pages", 0, "maximum pages to process (0 = unbounded)")

	flag.Parse()
	return cfg
}

func run(ctx context.Context, cfg *Config) error {
	if cfg.UserKey == "" || cfg.PoolAddress == "" {
		return fmt.Errorf("both -key and -pool are required")
	}

	k, err := zkp.ParseUserKey(cfg.UserKey)
	if err != nil {
		return fmt.Errorf("parsing account key: %w", err)
	}
	pool := common.HexToAddress(cfg.PoolAddress)

	fmt.Println("Connecting to database...")
	store, err := storage.NewPostgresStore(ctx, &storage.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  "disable",
		MaxConns: 20,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer store.Close()
	fmt.Println("Database connected.")

	nextIndex, err := store.GetNextDepositIndex(ctx, k, pool)
	if err != nil {
		return fmt.Errorf("reading next deposit index: %w", err)
	}
	precommitment, err := zkp.DeriveDepositPrecommitment(k, pool, nextIndex)
	if err != nil {
		return fmt.Errorf("deriving next deposit precommitment: %w", err)
	}
	fmt.Printf("Next deposit index %d, precommitment %s\n", nextIndex, precommitment.Precommitment)

	fetcher := newHTTPActivityFetcher(cfg.IndexerURL)
	engine := discovery.NewEngine(fetcher, store, &discovery.Config{
		PageSize: shinobicommon.MaxInt(1, cfg.PageSize),
		MaxPages: cfg.MaxPages,
	})

	fmt.Println("Scanning for notes...")
	result, err := engine.Run(ctx, k, pool, discovery.Options{
		Observer: func(p discovery.Progress) {
			fmt.Printf("  page %d: checked %d candidates, matched %d, cursor=%s\n",
				p.PagesProcessed, p.DepositsChecked, p.DepositsMatched, p.LastCursor)
		},
	})
	if err != nil {
		return fmt.Errorf("discovery run failed: %w", err)
	}

	fmt.Printf("Scan complete. %d new note(s) found across %d chain(s).\n", result.NewNotesFound, len(result.Notes))
	for _, chain := range result.Notes {
		tail := chain.Tail()
		if tail == nil {
			continue
		}
		fmt.Printf("  deposit %d: %d note(s), tail status=%v spendable=%v\n",
			chain.DepositIndex(), len(chain), tail.Status, tail.IsSpendable())
	}

	return nil
}
