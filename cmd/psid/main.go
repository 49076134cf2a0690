// Command psid runs the PSI-SUM reference transports as P2's endpoint: an
// HTTP API accepting session creation, round1, and round2 requests from a
// P1 client, an optional Kafka bridge carrying the same rounds over topics
// when KAFKA_BROKERS is set, and a Prometheus metrics listener.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/psiproto/ddh-psi-sum/config"
	"github.com/psiproto/ddh-psi-sum/server"
	"github.com/psiproto/ddh-psi-sum/transport"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "", "path to a JSON config file (overridden by environment variables)")
	flag.Parse()

	cfg := config.Default()
	if configFile != "" {
		loaded, err := config.LoadFile(configFile)
		if err != nil {
			panic(err)
		}
		cfg = loaded
	}
	cfg.ApplyEnv()

	logger := server.SetupLogger()
	logger.Info().Str("listen_addr", cfg.ListenAddr).Msg("starting psid")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv, err := server.New(ctx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize server")
	}
	defer srv.Close()

	srv.SetupCronTasks(&logger)

	errc := make(chan error, 3)
	go func() { errc <- srv.ListenAndServe(ctx) }()
	go func() {
		logger.Info().Str("metrics_addr", cfg.MetricsAddr).Msg("starting metrics listener")
		errc <- srv.ServeMetrics(ctx)
	}()

	if cfg.KafkaEnabled {
		kafkaConf, err := transport.ParseConfig()
		if err != nil {
			logger.Fatal().Err(err).Msg("kafka enabled but configuration is invalid")
		}
		go func() {
			logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("env", cfg.KafkaEnv).Msg("starting kafka bridge")
			errc <- srv.RunKafkaBridge(ctx, kafkaConf, cfg.KafkaEnv, &logger)
		}()
	}

	select {
	case err := <-errc:
		if err != nil {
			logger.Error().Err(err).Msg("listener stopped")
		}
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	}
}
