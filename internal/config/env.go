// Package config defines environment configuration structs and loaders.
package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type AppConfig struct {
	WalletEnvConfig
	RelayerEnvConfig
	Environment string `env:"ENVIRONMENT" envDefault:"dev"`
}

func LoadConfig() (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WalletEnvConfig holds wallet key configuration.
type WalletEnvConfig struct {
	WalletHotkey  string `env:"WALLET_HOTKEY"`
	WalletColdkey string `env:"WALLET_COLDKEY" envDefault:"default"`
	WalletDir     string `env:"WALLET_DIR" envDefault:"~/.stakemesh"`
}

// RelayerEnvConfig configures the relayer connection. It is re-read on every
// reconnect so endpoint or identity changes take effect without a restart.
type RelayerEnvConfig struct {
	AuthServiceURL            string        `env:"AUTH_SERVICE_URL" envDefault:"http://127.0.0.1:9100"`
	RelayerURL                string        `env:"RELAYER_URL" envDefault:"http://127.0.0.1:9200"`
	ExpectedHeartbeatInterval time.Duration `env:"EXPECTED_HEARTBEAT_INTERVAL" envDefault:"500ms"`
	OldestAllowedHeartbeat    time.Duration `env:"OLDEST_ALLOWED_HEARTBEAT" envDefault:"1500ms"`
	TrustPackets              bool          `env:"TRUST_RELAYER_PACKETS" envDefault:"false"`
	ConnectionTimeout         time.Duration `env:"CONNECTION_TIMEOUT" envDefault:"10s"`
}

// SimEnvConfig configures the local relayer simulator.
type SimEnvConfig struct {
	SimHost              string        `env:"SIM_HOST" envDefault:"0.0.0.0"`
	SimPort              int           `env:"SIM_PORT" envDefault:"9100"`
	SimHeartbeatInterval time.Duration `env:"SIM_HEARTBEAT_INTERVAL" envDefault:"500ms"`
	SimPacketInterval    time.Duration `env:"SIM_PACKET_INTERVAL" envDefault:"100ms"`
	SimAccessTokenTTL    time.Duration `env:"SIM_ACCESS_TOKEN_TTL" envDefault:"30m"`
	SimRefreshTokenTTL   time.Duration `env:"SIM_REFRESH_TOKEN_TTL" envDefault:"24h"`
}

type IntervalConfig struct {
	MetricsInterval     time.Duration
	MaintenanceInterval time.Duration
}

var (
	DevIntervalConfig = &IntervalConfig{
		MetricsInterval:     1 * time.Second,
		MaintenanceInterval: 1 * time.Minute,
	}

	ProdIntervalConfig = &IntervalConfig{
		MetricsInterval:     1 * time.Second,
		MaintenanceInterval: 10 * time.Minute,
	}
)

func NewIntervalConfig(environment string) *IntervalConfig {
	switch strings.ToLower(environment) {
	case "dev":
		return DevIntervalConfig
	case "prod":
		return ProdIntervalConfig
	}

	return DevIntervalConfig
}
