package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config aggregates every runtime setting for the service.
type Config struct {
	Server ServerConfig
	Auth   AuthConfig
	Store  StoreConfig
	AI     AIConfig
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`

	Addr string `ignored:"true"`
}

// AuthConfig drives token issuance and validation.
type AuthConfig struct {
	JWTSecret string        `envconfig:"JWT_SECRET" default:"fluxchat-dev-secret"`
	TokenTTL  time.Duration `envconfig:"TOKEN_TTL" default:"24h"`
	Issuer    string        `envconfig:"TOKEN_ISSUER" default:"fluxchat"`
}

// StoreConfig selects the persistence collaborator.
type StoreConfig struct {
	// Driver is "memory" or "badger".
	Driver string `envconfig:"STORE_DRIVER" default:"memory"`
	Path   string `envconfig:"STORE_PATH" default:"./data/fluxchat"`
}

// AIConfig carries credentials for the remote generation providers. Either
// provider may be left unconfigured; the canned backend never needs any.
type AIConfig struct {
	ArkAPIKey    string `envconfig:"ARK_API_KEY"`
	ArkBaseURL   string `envconfig:"ARK_BASE_URL"`
	ArkRegion    string `envconfig:"ARK_REGION"`
	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY"`
	OpenAIBase   string `envconfig:"OPENAI_BASE_URL"`
}

// ArkEnabled reports whether ark-backed catalog entries can be constructed.
func (c AIConfig) ArkEnabled() bool { return c.ArkAPIKey != "" }

// OpenAIEnabled reports whether openai-backed catalog entries can be constructed.
func (c AIConfig) OpenAIEnabled() bool { return c.OpenAIAPIKey != "" }

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg.Server); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}
	if err := envconfig.Process("", &cfg.Auth); err != nil {
		return nil, fmt.Errorf("auth config: %w", err)
	}
	if err := envconfig.Process("", &cfg.Store); err != nil {
		return nil, fmt.Errorf("store config: %w", err)
	}
	if err := envconfig.Process("", &cfg.AI); err != nil {
		return nil, fmt.Errorf("ai config: %w", err)
	}

	addr, err := normalizeAddr(cfg.Server.Port)
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr

	switch cfg.Store.Driver {
	case "memory", "badger":
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER value: %q", cfg.Store.Driver)
	}

	return &cfg, nil
}

// normalizeAddr accepts "8080", ":8080" or "127.0.0.1:8080".
func normalizeAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	return ":" + port, nil
}
