package main

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the enclave runtime configuration, loaded from the environment
// by the parent instance at enclave boot.
type Config struct {
	// Port is the vsock port the server listens on.
	Port uint32 `env:"ENCLAVE_PORT" envDefault:"5000"`

	// MaxWorkers bounds concurrent connections; extra connections are
	// rejected immediately rather than queued.
	MaxWorkers int `env:"ENCLAVE_MAX_WORKERS,required"`

	// AuctionID names the ledger; left empty a UUID is generated.
	AuctionID string `env:"AUCTION_ID"`

	// Operator is the account authorized for settlement and emergency drain.
	Operator string `env:"AUCTION_OPERATOR,required"`

	// Beneficiary receives the winning amount at settlement.
	Beneficiary string `env:"AUCTION_BENEFICIARY,required"`

	// BiddingWindow sets the initial deadline relative to enclave boot when
	// no snapshot exists.
	BiddingWindow time.Duration `env:"AUCTION_BIDDING_WINDOW" envDefault:"24h"`

	// SnapshotPath is the bbolt file holding the ledger snapshot. Empty
	// disables persistence.
	SnapshotPath string `env:"LEDGER_SNAPSHOT_PATH"`
}

// LoadConfig reads and validates the enclave configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse enclave config: %w", err)
	}
	if cfg.MaxWorkers <= 0 {
		return Config{}, fmt.Errorf("ENCLAVE_MAX_WORKERS must be positive, got %d", cfg.MaxWorkers)
	}
	if cfg.BiddingWindow <= 0 {
		return Config{}, fmt.Errorf("AUCTION_BIDDING_WINDOW must be positive, got %s", cfg.BiddingWindow)
	}
	return cfg, nil
}
