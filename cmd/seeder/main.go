package main

import (
	"context"
	"flag"
	"os"

	"github.com/arhyth/bankledger"
	"github.com/bwmarrin/snowflake"
	"github.com/rs/zerolog"
)

func main() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfp := flag.String("config", "config.yml", "path to configuration file")
	flag.Parse()
	cfg, err := bankledger.LoadConfigFile(*cfp)
	if err != nil {
		logger.Fatal().Err(err).Msg("error loading config file")
	}

	lh, err := bankledger.NewLocalHelper(cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("error starting local helper")
	}
	if _, err = lh.InitDB(); err != nil {
		logger.Fatal().Err(err).Msg("error initializing database")
	}

	ctx := context.Background()
	node, err := snowflake.NewNode(cfg.Snowflake.Node)
	if err != nil {
		logger.Fatal().Err(err).Msg("error creating snowflake node")
	}
	pgendpt, err := bankledger.NewPostgresEndpoint(ctx, cfg.Database.ConnectionString, cfg.Database.MaxConns, node, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("error starting database")
	}
	defer pgendpt.Close()

	svc := bankledger.NewService(pgendpt, &logger)
	if err = lh.PrepareAccounts(ctx, svc, cfg.Seed.Accounts); err != nil {
		logger.Fatal().Err(err).Msg("error preparing seed accounts")
	}
}
