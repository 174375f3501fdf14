package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/tiplink/internal/httpapi"
)

const shutdownTimeout = 10 * time.Second

// NewDispatchCommand creates the dispatch command.
func NewDispatchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch",
		Short: "Deliver every queued outbound transfer once",
		Long: `Drain the transfer outbox from the dispatcher cursor. Failed deliveries
are recorded as failed and are not retried.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, rootOpts, false, func(ctx context.Context, rt *runtime) (result, error) {
				n, err := rt.dispatcher.Drain(ctx)
				if err != nil {
					return result{}, err
				}
				return result{data: map[string]int{"handled": n}, text: fmt.Sprintf("handled %d transfer(s)", n)}, nil
			})
		},
	}
}

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions

	// Ready, if set, receives the bound address once the server listens.
	Ready chan<- net.Addr
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and dispatch transfers continuously",
		Long: `Start the HTTP API, deliver outbound transfers after every commit and on
the dispatch schedule, and expose Prometheus metrics at /metrics.

Example:
  tiplink serve --db ./tiplink.db --http-addr :8080 --schedule "@every 30s"`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd, opts)
		},
	}

	cmd.Flags().String("http-addr", "127.0.0.1:8080", "HTTP listen address")
	cmd.Flags().String("schedule", "@every 1m", "cron spec for periodic dispatch (empty disables)")
	_ = rootOpts.viper.BindPFlag("http.addr", cmd.Flags().Lookup("http-addr"))
	_ = rootOpts.viper.BindPFlag("dispatch.schedule", cmd.Flags().Lookup("schedule"))
	return cmd
}

func serve(cmd *cobra.Command, opts *ServeOptions) error {
	f := opts.formatter(cmd)
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx, opts.RootOptions)
	if err != nil {
		return f.Fail("open runtime", err)
	}
	defer rt.Close()
	cfg := rt.cfg

	ln, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return f.Fail("listen", err)
	}
	srv := &http.Server{
		Handler: httpapi.NewHandler(rt.engine,
			httpapi.WithLogger(rt.logger.Named("http")),
			httpapi.WithMetrics(rt.metrics.Handler()),
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.Dispatch.Schedule != "" {
		c, err := rt.dispatcher.Every(cfg.Dispatch.Schedule)
		if err != nil {
			ln.Close()
			return f.Fail("schedule dispatch", err)
		}
		defer c.Stop()
	}

	errc := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = rt.dispatcher.Run(ctx)
	}()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	rt.logger.Info("serving", zap.String("addr", ln.Addr().String()), zap.String("store", cfg.Store.Driver))
	f.VerboseLog("listening on %s", ln.Addr())
	if opts.Ready != nil {
		opts.Ready <- ln.Addr()
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errc:
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		rt.logger.Warn("http shutdown", zap.Error(err))
	}
	<-done
	rt.logger.Info("stopped")

	if serveErr != nil {
		return f.Fail("serve", serveErr)
	}
	return nil
}
