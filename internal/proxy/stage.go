package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stakemesh-labs/relayproxy/internal/auth"
	"github.com/stakemesh-labs/relayproxy/internal/config"
	"github.com/stakemesh-labs/relayproxy/internal/identity"
	"github.com/stakemesh-labs/relayproxy/internal/relayer"
)

const maxBackoff = 10 * time.Second

// Stage supervises the relayer connection: dial, authenticate, stream,
// and on any failure back off and redial from scratch. The token cell it
// owns persists across reconnects; its contents are replaced on every
// successful handshake.
type Stage struct {
	cfg       ConfigProvider
	ident     identity.Provider
	cell      *auth.TokenCell
	sinks     Sinks
	intervals *config.IntervalConfig

	// OnStats, when set, observes the per-interval stream stats right before
	// they are reset. Used by metrics wiring and tests.
	OnStats func(ConnectionStats)

	backoffStep time.Duration
	errorCount  uint64
	wg          sync.WaitGroup
}

func NewStage(cfg ConfigProvider, ident identity.Provider, sinks Sinks, intervals *config.IntervalConfig) *Stage {
	if intervals == nil {
		intervals = config.ProdIntervalConfig
	}
	return &Stage{
		cfg:         cfg,
		ident:       ident,
		cell:        auth.NewTokenCell(),
		sinks:       sinks,
		intervals:   intervals,
		backoffStep: time.Second,
	}
}

// Start runs the supervisor loop on its own goroutine. The stage owns the
// worker exclusively; Join blocks until it has exited.
func (s *Stage) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Run(ctx)
	}()
}

func (s *Stage) Join() {
	s.wg.Wait()
}

// Run loops until the context is canceled. A clean exit from the streaming
// loop resets the backoff; every failure grows it by one step up to the cap,
// with no distinction by error kind.
func (s *Stage) Run(ctx context.Context) {
	var backoff time.Duration

	for ctx.Err() == nil {
		err := s.connectAuthAndStream(ctx)
		if err == nil {
			backoff = 0
			continue
		}
		if ctx.Err() != nil {
			return
		}

		s.errorCount++
		log.Error().
			Err(err).
			Str("event", "relayer_connection_error").
			Uint64("count", s.errorCount).
			Msg("relayer connection error")

		backoff = nextBackoff(backoff, s.backoffStep)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}

func nextBackoff(current, step time.Duration) time.Duration {
	next := current + step
	limit := maxBackoff / time.Second * step
	if next > limit {
		return limit
	}
	return next
}

// connectAuthAndStream performs one full connection attempt: re-read config
// and identity, dial both endpoints, handshake, then hand off to the
// streaming consumer.
func (s *Stage) connectAuthAndStream(ctx context.Context) error {
	// Re-read config and identity here in case they changed at runtime.
	cfg, err := s.cfg()
	if err != nil {
		return fmt.Errorf("read connection config: %w", err)
	}
	keypair, err := s.ident.Current()
	if err != nil {
		return fmt.Errorf("read signing identity: %w", err)
	}

	log.Debug().Str("url", cfg.AuthServiceURL).Msg("connecting to auth service")
	if err := dialEndpoint(cfg.AuthServiceURL, cfg.ConnectionTimeout); err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: %s", ErrAuthConnectionTimeout, cfg.AuthServiceURL)
		}
		return fmt.Errorf("%w: %v", ErrAuthConnectionError, err)
	}

	authClient := auth.NewClient(cfg.AuthServiceURL, cfg.ConnectionTimeout)
	mgr := auth.NewManager(authClient, s.cell)

	log.Debug().Msg("generating authentication tokens")
	hctx, cancel := context.WithTimeout(ctx, cfg.ConnectionTimeout)
	err = mgr.Bootstrap(hctx, keypair)
	cancel()
	if err != nil {
		if errors.Is(hctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", ErrAuthTimeout, err)
		}
		return err
	}

	log.Debug().Str("url", cfg.RelayerURL).Msg("connecting to relayer")
	if err := dialEndpoint(cfg.RelayerURL, cfg.ConnectionTimeout); err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: %s", ErrRelayerConnectionTimeout, cfg.RelayerURL)
		}
		return fmt.Errorf("%w: %v", ErrRelayerConnectionError, err)
	}

	client := relayer.NewClient(cfg.RelayerURL, s.cell, cfg.ConnectionTimeout)

	return s.consume(ctx, cfg, mgr, keypair, client)
}

// dialEndpoint probes the endpoint with a bounded TCP dial so a hung remote
// yields a distinct timeout instead of stalling the supervisor.
func dialEndpoint(rawURL string, timeout time.Duration) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse endpoint %q: %w", rawURL, err)
	}

	hostport := u.Host
	if u.Port() == "" {
		port := "80"
		if u.Scheme == "https" {
			port = "443"
		}
		hostport = net.JoinHostPort(u.Hostname(), port)
	}

	conn, err := net.DialTimeout("tcp", hostport, timeout)
	if err != nil {
		return err
	}
	return conn.Close()
}

func isTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
