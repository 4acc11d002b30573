package config

import "time"

// ClientConfig tells ticketctl where the registry API lives.
type ClientConfig struct {
	APIURL   string        // base URL of cmd/server
	APIToken string        // issuer token minted with `ticketctl token`
	Timeout  time.Duration // per request
	LogLevel string
}

func LoadClientConfig() ClientConfig {
	return ClientConfig{
		APIURL:   envStr("REGISTRY_API_URL", "http://localhost:8080"),
		APIToken: envStr("REGISTRY_API_TOKEN", ""),
		Timeout:  envDur("REGISTRY_API_TIMEOUT", 15*time.Second),
		LogLevel: envStr("LOG_LEVEL", "warn"),
	}
}
