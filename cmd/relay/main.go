package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/kashguard/go-sphinx-relay/cmd/cert"
	"github.com/kashguard/go-sphinx-relay/internal/config"
	"github.com/kashguard/go-sphinx-relay/internal/ldat"
	"github.com/kashguard/go-sphinx-relay/internal/lightning"
	"github.com/kashguard/go-sphinx-relay/internal/metrics"
	"github.com/kashguard/go-sphinx-relay/internal/payments"
	"github.com/kashguard/go-sphinx-relay/internal/signer"
	"github.com/kashguard/go-sphinx-relay/internal/weave"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// app wires the relay core for one CLI invocation.
type app struct {
	cfg      config.Server
	clients  *lightning.Clients
	redis    *redis.Client
	payments *payments.Service
	signer   *signer.Engine
	tokens   *ldat.Builder
	weaver   *weave.Weaver

	requestTimeout time.Duration
}

// runner adapts a core-backed action to a cobra RunE.
type runner func(run func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error

func newApp(cfg config.Server) (*app, error) {
	var opts []lightning.ClientsOption
	a := &app{cfg: cfg}
	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		nodeKey := cfg.Lightning.Host
		if lightning.ParseBackend(cfg.Lightning.Backend) == lightning.BackendGreenlight {
			nodeKey = cfg.Lightning.GreenlightTarget
		}
		opts = append(opts, lightning.WithWalletLock(
			lightning.NewRedisWalletLock(a.redis, nodeKey, cfg.Lightning.WalletLockDuration)))
	}

	clients, err := lightning.NewClients(cfg.Lightning, cfg.Payments, opts...)
	if err != nil {
		return nil, err
	}
	a.clients = clients
	a.payments = payments.NewService(clients, cfg.Payments)
	a.signer = signer.New(clients)
	a.tokens = ldat.NewBuilder(a.signer, time2.DefaultClock, cfg.Media.Host)
	a.weaver = weave.NewWeaver(a.payments, cfg.Payments, time2.DefaultClock)
	return a, nil
}

func (a *app) Close() {
	if err := a.clients.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close lightning clients")
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

// pushMetrics hands the counters of a one-shot command to the Pushgateway.
func (a *app) pushMetrics(command string) {
	if !a.cfg.Metrics.Enabled || a.cfg.Metrics.PushURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metrics.Push(ctx, a.cfg.Metrics.PushURL, "relay", command); err != nil {
		log.Warn().Err(err).Str("command", command).Msg("Failed to push metrics")
	}
}

func setupLogger(cfg config.Logger) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		timeout    time.Duration
	)

	root := &cobra.Command{
		Use:           "relay",
		Short:         "Payment transport tools for a lightning messaging relay",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("RELAY_CONFIG"), "YAML config file")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Deadline for the whole command")

	load := func() (*app, error) {
		cfg, err := config.LoadFromPath(configPath)
		if err != nil {
			return nil, err
		}
		setupLogger(cfg.Logger)
		a, err := newApp(cfg)
		if err != nil {
			return nil, err
		}
		a.requestTimeout = timeout
		return a, nil
	}

	// offline commands never build the core
	var withApp runner = func(run func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			err = run(ctx, a, args)
			a.pushMetrics(cmd.CommandPath())
			return err
		}
	}

	// withDaemon runs until stdin closes or the process is signalled.
	var withDaemon runner = func(run func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, a, args)
		}
	}

	root.AddCommand(
		newSignCmd(withApp),
		newVerifyCmd(withApp),
		newTokenCmd(withApp),
		newKeysendCmd(withApp),
		newPayCmd(withApp),
		newNodeCmd(withApp),
		newHistoryCmd(withApp),
		newUnlockCmd(withApp),
		newServeCmd(withDaemon),
		newDecodeCmd(),
		cert.New(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal().Err(err).Msg("Command failed")
	}
}
