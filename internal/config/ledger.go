package config

import "time"

// LedgerConfig controls access to the ledger: Blockfrost for queries and
// submission, and the transaction builder service.
type LedgerConfig struct {
	BlockfrostURL  string
	ProjectID      string
	BuilderURL     string
	Network        int // 0 testnet, 1 mainnet
	RequestTimeout time.Duration
	MaxRetries     int
	RetryInitial   time.Duration
	RetryMax       time.Duration
	ConfirmPoll    time.Duration
	ConfirmTimeout time.Duration
}

// LoadLedgerConfig reads BLOCKFROST_* and LEDGER_* variables.  Defaults
// point at the preprod network.
func LoadLedgerConfig() LedgerConfig {
	cfg := LedgerConfig{
		BlockfrostURL:  envStr("BLOCKFROST_URL", "https://cardano-preprod.blockfrost.io/api/v0"),
		ProjectID:      envStr("BLOCKFROST_PROJECT_ID", ""),
		BuilderURL:     envStr("LEDGER_BUILDER_URL", "http://localhost:8787"),
		Network:        envInt("LEDGER_NETWORK_ID", 0),
		RequestTimeout: envDur("LEDGER_REQUEST_TIMEOUT", 10*time.Second),
		MaxRetries:     envInt("LEDGER_MAX_RETRIES", 4),
		RetryInitial:   envDur("LEDGER_RETRY_INITIAL", 250*time.Millisecond),
		RetryMax:       envDur("LEDGER_RETRY_MAX", 5*time.Second),
		ConfirmPoll:    envDur("LEDGER_CONFIRM_POLL", 5*time.Second),
		ConfirmTimeout: envDur("LEDGER_CONFIRM_TIMEOUT", 3*time.Minute),
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.Network != 1 {
		cfg.Network = 0
	}
	return cfg
}
