package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/stakemesh-labs/relayproxy/internal/config"
	"github.com/stakemesh-labs/relayproxy/internal/identity"
	"github.com/stakemesh-labs/relayproxy/internal/packet"
	"github.com/stakemesh-labs/relayproxy/internal/proxy"
	"github.com/stakemesh-labs/relayproxy/pkg/utils/logger"
)

func main() {
	logger.Init()
	log.Info().Msg("Starting relayer proxy...")

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg(".env not loaded; continuing with existing environment")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load environment configuration")
	}

	ident, err := identity.NewFileProvider(cfg.WalletColdkey, cfg.WalletHotkey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load validator identity")
	}

	heartbeats := make(chan proxy.HeartbeatEvent, 8)
	packets := make(chan packet.Batch, 256)
	verified := make(chan packet.VerifiedBatch, 256)
	done := make(chan struct{})

	// Downstream consumers live outside this binary; drain and log until
	// something is attached to these sinks.
	go drainSinks(heartbeats, packets, verified)

	stage := proxy.NewStage(
		proxy.FromEnv(&cfg.RelayerEnvConfig),
		ident,
		proxy.Sinks{
			Heartbeats:      heartbeats,
			Packets:         packets,
			VerifiedPackets: verified,
			Done:            done,
		},
		config.NewIntervalConfig(cfg.Environment),
	)

	ctx, cancel := context.WithCancel(context.Background())
	stage.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("shutting down relayer proxy")

	cancel()
	stage.Join()
	close(done)
	log.Info().Msg("relayer proxy stopped")
}

func drainSinks(
	heartbeats <-chan proxy.HeartbeatEvent,
	packets <-chan packet.Batch,
	verified <-chan packet.VerifiedBatch,
) {
	for {
		select {
		case ev := <-heartbeats:
			log.Debug().
				Str("tpu", ev.TpuSocket.String()).
				Str("tpu_fwd", ev.TpuForwardSocket.String()).
				Msg("relayer heartbeat")
		case batch := <-packets:
			log.Debug().Int("packets", len(batch)).Msg("unverified batch received")
		case vb := <-verified:
			total := 0
			for _, b := range vb.Batches {
				total += len(b)
			}
			log.Debug().Int("packets", total).Msg("verified batch received")
		}
	}
}
