package main

import (
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/stakemesh-labs/relayproxy/internal/config"
	"github.com/stakemesh-labs/relayproxy/internal/relaysim"
	"github.com/stakemesh-labs/relayproxy/pkg/utils/logger"
)

func main() {
	logger.Init()
	log.Info().Msg("Starting relayer simulator...")

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg(".env not loaded; continuing with existing environment")
	}

	cfg := &config.SimEnvConfig{}
	if err := env.Parse(cfg); err != nil {
		log.Fatal().Err(err).Msg("failed to load simulator configuration")
	}

	server := relaysim.NewServer(cfg)
	if err := server.Start(); err != nil {
		log.Fatal().Err(err).Msg("simulator stopped")
	}
}
