package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/arhyth/bankledger"
	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

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
	zerolog.SetGlobalLevel(cfg.LogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	node, err := snowflake.NewNode(cfg.Snowflake.Node)
	if err != nil {
		logger.Fatal().Err(err).Int64("node", cfg.Snowflake.Node).Msg("error creating snowflake node")
	}

	var store bankledger.Store
	switch cfg.Database.Driver {
	case bankledger.DriverMemory:
		logger.Warn().Msg("using in-memory store, data is lost on exit")
		store = bankledger.NewMemoryStore(node)
	default:
		if cfg.Database.Migrate {
			if err = bankledger.RunMigrations(cfg.Database.ConnectionString, &logger); err != nil {
				logger.Fatal().Err(err).Msg("error migrating database")
			}
		}
		pgendpt, err := bankledger.NewPostgresEndpoint(ctx, cfg.Database.ConnectionString, cfg.Database.MaxConns, node, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("error starting database")
		}
		defer pgendpt.Close()
		store = pgendpt
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	core := bankledger.NewService(store, &logger)
	if cfg.Database.Driver == bankledger.DriverMemory {
		lh := &bankledger.LocalHelper{Log: &logger}
		if err = lh.PrepareAccounts(ctx, core, cfg.Seed.Accounts); err != nil {
			logger.Fatal().Err(err).Msg("error preparing seed accounts")
		}
	}

	svc := bankledger.Chain(
		core,
		bankledger.NewMetricsMiddleware(bankledger.NewServiceMetrics(reg)),
		bankledger.NewValidationMiddleware(),
		bankledger.NewCircuitBreakMiddleware(bankledger.NewServiceBreaker(cfg.BreakerSettings(&logger))),
		bankledger.NewLimitMiddleware(bankledger.NewServiceLimits(cfg.Limits.InFlight, cfg.Limits.AcquireTimeout)),
	)
	hndlr := bankledger.NewHTTPHandler(svc, reg, &logger)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: hndlr,
	}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			logger.Err(err).Msg("error shutting down server")
		}
	}()

	logger.Info().Str("addr", cfg.Server.Addr).Msg("server listening")
	if err = srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server error")
	}
}
