package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"starkvoucher/cmd/internal/passphrase"
	"starkvoucher/crypto"
	"starkvoucher/ledger"
	"starkvoucher/naming"
	"starkvoucher/observability"
	"starkvoucher/observability/logging"
	telemetry "starkvoucher/observability/otel"
	"starkvoucher/services/freedomain/config"
	"starkvoucher/services/freedomain/server"
	"starkvoucher/voucher"
)

const serviceName = "freedomaind"

func main() {
	configPath := flag.String("config", "freedomaind.yaml", "path to the configuration file (.yaml or .toml)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatalf("%s: %v", serviceName, err)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := logging.Setup(serviceName, cfg.Environment, logging.Options{
		Level:      logging.ParseLevel(cfg.Log.Level),
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Warn("telemetry shutdown", slog.Any("error", err))
		}
	}()

	key, err := loadSigningKey(cfg, logger)
	if err != nil {
		return err
	}
	signer, err := crypto.NewSigner(key)
	if err != nil {
		return err
	}

	store, err := ledger.Open(cfg.Ledger)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()

	voucherCfg, err := cfg.VoucherConfig()
	if err != nil {
		return err
	}
	svc, err := voucher.New(voucherCfg, store, naming.EncodeLabel, signer, voucher.WithLogger(logger))
	if err != nil {
		return err
	}
	srv, err := server.New(svc, signer.PublicKey(), server.Config{
		RateLimit: server.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
			TrustedProxies:    cfg.RateLimit.TrustedProxies,
		},
		Metrics: observability.Voucher(),
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	logger.Info("campaign configured",
		slog.String("public_key", signer.PublicKey().X().Hex()),
		slog.Int64("start_time", voucherCfg.StartTime),
		slog.Int64("end_time", voucherCfg.EndTime),
		slog.String("ledger", cfg.Ledger.Driver))
	return srv.Run(ctx, cfg.ListenAddress, cfg.ShutdownTimeout.Duration)
}

// loadSigningKey prefers a raw hex key from the environment and falls back to
// the encrypted keystore.
func loadSigningKey(cfg config.Config, logger *slog.Logger) (*crypto.PrivateKey, error) {
	if raw := strings.TrimSpace(os.Getenv(cfg.Signer.PrivateKeyEnv)); raw != "" {
		if cfg.Environment == "prod" {
			logger.Warn("signing key loaded from environment; prefer signer.keystore in production")
		}
		key, err := crypto.PrivateKeyFromHex(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", cfg.Signer.PrivateKeyEnv, err)
		}
		return key, nil
	}
	if strings.TrimSpace(cfg.Signer.Keystore) == "" {
		return nil, fmt.Errorf("no signing key: set %s or signer.keystore", cfg.Signer.PrivateKeyEnv)
	}
	pass, err := passphrase.NewSource(cfg.Signer.PassphraseEnv, passphrase.WithLabel("signer keystore")).Get()
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(cfg.Signer.Keystore, pass)
	if err != nil {
		return nil, fmt.Errorf("load signer keystore: %w", err)
	}
	return key, nil
}
