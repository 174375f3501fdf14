package cli

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"github.com/roach88/tiplink/internal/config"
	"github.com/roach88/tiplink/internal/engine"
	"github.com/roach88/tiplink/internal/metrics"
	"github.com/roach88/tiplink/internal/store"
	"github.com/roach88/tiplink/internal/transfer"
)

// runtime is the wired process: store, engine and transfer dispatcher.
type runtime struct {
	cfg        config.Config
	logger     *zap.Logger
	store      store.Store
	metrics    *metrics.Metrics
	dispatcher *transfer.Dispatcher
	engine     *engine.Engine
}

func openRuntime(ctx context.Context, opts *RootOptions) (*runtime, error) {
	cfg := opts.Config
	logger, err := newLogger(cfg.Log.Level, opts.Verbose)
	if err != nil {
		return nil, err
	}

	engine.DetectStalls(cfg.Engine.DeadlockTimeout, logger.Named("lock"))

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	logger.Debug("store ready", zap.String("driver", cfg.Store.Driver))

	m := metrics.New()
	t := opts.Transferer
	if t == nil {
		t = newTransferer(cfg.Transfer, logger)
	}
	d := transfer.NewDispatcher(st, t,
		transfer.WithLimiter(newLimiter(cfg.Dispatch)),
		transfer.WithBatch(cfg.Dispatch.Batch),
		transfer.WithLogger(logger.Named("dispatch")),
		transfer.WithObserver(m),
	)

	engineOpts := []engine.Option{
		engine.WithLogger(logger.Named("engine")),
		engine.WithNotifier(d),
		engine.WithObserver(m),
	}
	if opts.IDs != nil {
		engineOpts = append(engineOpts, engine.WithIDGenerator(opts.IDs))
	}

	return &runtime{
		cfg:        cfg,
		logger:     logger,
		store:      st,
		metrics:    m,
		dispatcher: d,
		engine:     engine.New(st, engineOpts...),
	}, nil
}

// settle delivers whatever the command scheduled. Delivery failures are
// recorded on the outbox and logged; they do not fail the command.
func (rt *runtime) settle(ctx context.Context) (int, error) {
	return rt.dispatcher.Drain(ctx)
}

func (rt *runtime) Close() error {
	err := rt.store.Close()
	_ = rt.logger.Sync()
	return err
}

// newLogger builds a production logger at level, or a development logger
// at debug when verbose is set.
func newLogger(level string, verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return store.Open(cfg.Path)
	case config.DriverMemory:
		return store.NewMemory(), nil
	case config.DriverRedis:
		return store.OpenRedis(ctx, cfg.Redis.Addr, cfg.Redis.Prefix)
	default:
		return nil, errors.New("unknown store driver " + cfg.Driver)
	}
}

func newTransferer(cfg config.TransferConfig, logger *zap.Logger) transfer.Transferer {
	if cfg.Webhook == "" {
		return transfer.LogTransferer{Logger: logger.Named("transfer")}
	}
	return transfer.NewWebhookTransferer(cfg.Webhook)
}

// newLimiter returns a token bucket for cfg. A zero rate is unlimited.
func newLimiter(cfg config.DispatchConfig) *rate.Limiter {
	if cfg.Rate <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.Rate), burst)
}
