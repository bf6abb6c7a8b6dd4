// Package proxy maintains the validator's connection to the relayer: it
// authenticates against the auth service, subscribes to the packet stream,
// watches relayer liveness, keeps credentials rotated, and reconnects with
// bounded backoff on any failure.
package proxy

import (
	"net/netip"
	"time"

	"github.com/stakemesh-labs/relayproxy/internal/config"
)

// Config describes one connection attempt. It is immutable for the lifetime
// of the attempt and re-read fresh on every reconnect, since endpoints and
// the signing identity may change at runtime.
type Config struct {
	// AuthServiceURL is the external auth service responsible for issuing
	// access tokens.
	AuthServiceURL string

	// RelayerURL is the primary relayer endpoint.
	RelayerURL string

	// ExpectedHeartbeatInterval is how often the watchdog checks liveness.
	ExpectedHeartbeatInterval time.Duration

	// OldestAllowedHeartbeat is the max tolerable age of the last heartbeat.
	OldestAllowedHeartbeat time.Duration

	// TrustPackets bypasses local signature verification for relayer packets.
	TrustPackets bool

	// ConnectionTimeout bounds dialing and the auth handshake.
	ConnectionTimeout time.Duration
}

// ConfigProvider yields a fresh Config at the top of every connection attempt.
type ConfigProvider func() (Config, error)

// FromEnv adapts the environment configuration into a ConfigProvider.
func FromEnv(env *config.RelayerEnvConfig) ConfigProvider {
	return func() (Config, error) {
		return Config{
			AuthServiceURL:            env.AuthServiceURL,
			RelayerURL:                env.RelayerURL,
			ExpectedHeartbeatInterval: env.ExpectedHeartbeatInterval,
			OldestAllowedHeartbeat:    env.OldestAllowedHeartbeat,
			TrustPackets:              env.TrustPackets,
			ConnectionTimeout:         env.ConnectionTimeout,
		}, nil
	}
}

// HeartbeatEvent is the TPU socket pair advertised by the relayer, resolved
// once per connection and replayed verbatim on every heartbeat so downstream
// routing stays consistent for the life of the connection.
type HeartbeatEvent struct {
	TpuSocket        netip.AddrPort
	TpuForwardSocket netip.AddrPort
}
