// Command relayquery authenticates against the relayer once, prints the
// advertised TPU sockets, and optionally pulls a few packet batches. Useful
// for checking credentials and connectivity before starting the proxy.
package main

import (
	"context"
	"flag"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/stakemesh-labs/relayproxy/internal/config"
	"github.com/stakemesh-labs/relayproxy/pkg/relayquery"
	"github.com/stakemesh-labs/relayproxy/pkg/signature"
	"github.com/stakemesh-labs/relayproxy/pkg/utils/logger"
)

func main() {
	batches := flag.Int("batches", 0, "number of packet batches to pull after the socket query")
	logger.Init()

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg(".env not loaded; continuing with existing environment")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load environment configuration")
	}

	keypair, err := signature.LoadKeypairFromHotkey(cfg.WalletColdkey, cfg.WalletHotkey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load wallet keypair")
	}
	log.Info().Str("identity", signature.ToSS58Address(keypair)).Msg("signing as")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectionTimeout)
	defer cancel()

	client, err := relayquery.Connect(ctx, cfg.AuthServiceURL, cfg.RelayerURL, keypair, cfg.ConnectionTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("handshake failed")
	}

	tpu, tpuFwd, err := client.TpuSockets(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("tpu config query failed")
	}
	log.Info().Str("tpu", tpu.String()).Str("tpu_fwd", tpuFwd.String()).Msg("relayer sockets")

	if *batches > 0 {
		pulled, err := client.PullBatches(context.Background(), *batches)
		if err != nil {
			log.Fatal().Err(err).Msg("packet pull failed")
		}
		total := 0
		for _, b := range pulled {
			total += len(b)
		}
		log.Info().Int("batches", len(pulled)).Int("packets", total).Msg("pulled packet batches")
	}
}
