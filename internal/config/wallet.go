package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// WalletConfig controls how the operator CLI finds signing providers and
// where it keeps the reconnect hint between runs.
//
// Fields:
//  Preference  – provider ids tried first, in order.
//  Providers   – provider id → CIP-30 bridge base URL.
//  HintBackend – "file" or "redis".
//  HintFile    – yaml file used by the file backend.
//  HintKey     – redis key used by the redis backend.
//  ProbeTimeout – how long a provider availability probe may take.
type WalletConfig struct {
	Preference   []string
	Providers    map[string]string
	HintBackend  string
	HintFile     string
	HintKey      string
	ProbeTimeout time.Duration
}

// LoadWalletConfig reads WALLET_* variables.  WALLET_PROVIDERS is a comma
// separated list of id=url pairs, e.g. "lace=http://127.0.0.1:9001".
func LoadWalletConfig() WalletConfig {
	return WalletConfig{
		Preference:   splitList(envStr("WALLET_PREFERENCE", "lace,eternl,nami")),
		Providers:    parsePairs(envStr("WALLET_PROVIDERS", "")),
		HintBackend:  strings.ToLower(envStr("WALLET_HINT_BACKEND", "file")),
		HintFile:     envStr("WALLET_HINT_FILE", defaultHintFile()),
		HintKey:      envStr("WALLET_HINT_KEY", "wallet:hint"),
		ProbeTimeout: envDur("WALLET_PROBE_TIMEOUT", 2*time.Second),
	}
}

func defaultHintFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "wallet.yaml"
	}
	return filepath.Join(dir, "ticketctl", "wallet.yaml")
}

func splitList(s string) []string {
	out := []string{}
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parsePairs(s string) map[string]string {
	m := map[string]string{}
	for _, p := range splitList(s) {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			continue
		}
		m[strings.TrimSpace(k)] = strings.TrimRight(strings.TrimSpace(v), "/")
	}
	return m
}
