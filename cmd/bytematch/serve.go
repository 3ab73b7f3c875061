package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"bytematch/internal/api"
	"bytematch/internal/classify"
	"bytematch/internal/client"
	"bytematch/internal/config"
	"bytematch/internal/metrics"
	"bytematch/internal/rules"
	"bytematch/internal/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the TCP/UDP classifier with HTTP API and metrics",
	}
	cfg := config.Register(cmd.Flags())
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if err := cfg.Finalize(); err != nil {
			return err
		}
		return serve(cfg)
	}
	return cmd
}

func serve(cfg *config.Config) error {
	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Msg("bytematch classifier starting")
	log.Info().Msgf("Listening on: %s", cfg.ListenAddr)
	if cfg.ControllerURL != "" {
		log.Info().Msgf("Controller URL: %s", cfg.ControllerURL)
		log.Info().Msgf("Fetch Interval: %v", cfg.FetchInterval)
	}
	log.Info().Msgf("Metrics endpoint: http://%s/metrics", cfg.MetricsAddr)

	// Start metrics server in background
	go func() {
		if err := metrics.StartMetricsServer(cfg.MetricsAddr); err != nil {
			log.Err(err).Msg("Metrics server error:")
		}
	}()

	handler := classify.NewHandler(cfg.Verbose, cfg.ReadTimeout)

	if cfg.RulesFile != "" {
		doc, err := rules.Load(cfg.RulesFile)
		if err != nil {
			return err
		}
		rs, err := doc.Set()
		if err != nil {
			return err
		}
		if err := handler.Update(rs); err != nil {
			return err
		}
		log.Info().Msgf("Loaded %d rules from %s", len(rs.Rules), cfg.RulesFile)
	}

	updateChannel := make(chan rules.Set, 10)

	go func() {
		for rs := range updateChannel {
			if cfg.Verbose {
				log.Info().Msgf("Received rule set update with %d rules", len(rs.Rules))
			}
			if err := handler.Update(rs); err != nil {
				metrics.ErrorsTotal.WithLabelValues(metrics.ErrorTypeCompile, "update").Inc()
				log.Err(err).Msg("Rejected rule set update, keeping current rule set")
				continue
			}
			log.Info().Msgf("Rule set updated successfully with %d rules", len(rs.Rules))
		}
	}()

	if cfg.Watch {
		closer, err := rules.Watch(cfg.RulesFile, cfg.WatchDebounce, updateChannel)
		if err != nil {
			return err
		}
		defer closer.Close()
	}

	if cfg.ControllerURL != "" {
		fetcher, err := client.NewFetcher(cfg.ControllerURL, cfg.ControllerHash, cfg.FetchInterval, cfg.Verbose, cfg.OperationalMode, client.TLSConfig{
			CACertPath:         cfg.CACertPath,
			ClientCertPath:     cfg.ClientCertPath,
			ClientKeyPath:      cfg.ClientKeyPath,
			InsecureSkipVerify: cfg.Insecure,
		}, updateChannel)
		if err != nil {
			return err
		}
		go fetcher.Start(ctx)
	} else {
		log.Info().Msg("No controller URL specified, running without remote rule set updates")
	}

	if cfg.APIAddr != "" {
		apiServer := api.NewServer(cfg.APIAddr, cfg.Verbose, handler)
		go func() {
			if err := apiServer.Start(); err != nil {
				log.Err(err).Msg("API server error:")
			}
		}()
	}

	udpServer := server.NewUDPServer(cfg.ListenAddr, handler, cfg.Verbose)
	tcpServer := server.NewTCPServer(cfg.ListenAddr, handler, cfg.Verbose)

	go func() {
		if err := udpServer.Start(); err != nil {
			log.Err(err).Msg("UDP server error:")
		}
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- tcpServer.Start() }()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
		return nil
	case err := <-errCh:
		return err
	}
}
