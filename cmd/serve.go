package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/access-cli/internal/access"
	"github.com/sells-group/access-cli/internal/api"
	"github.com/sells-group/access-cli/internal/config"
	"github.com/sells-group/access-cli/internal/crowfly"
	"github.com/sells-group/access-cli/internal/geodata"
	"github.com/sells-group/access-cli/internal/metrics"
	"github.com/sells-group/access-cli/internal/resilience"
	"github.com/sells-group/access-cli/internal/scenario"
	"github.com/sells-group/access-cli/internal/session"
	"github.com/sells-group/access-cli/pkg/oas"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the decision-support API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initServer(ctx, cfg, prometheus.NewRegistry())
		if err != nil {
			return err
		}
		defer env.Close()

		go env.Store.Run(ctx, cfg.Session.SweepInterval)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           env.Handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server",
			zap.Int("port", port),
			zap.String("provider", cfg.Provider.Kind),
			zap.Bool("database", cfg.Store.DatabaseURL != ""),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// serverEnv holds the wired dependencies of the API server.
type serverEnv struct {
	Store   *session.Store
	Handler http.Handler
	pool    *pgxpool.Pool
}

// Close releases the database pool, if any.
func (e *serverEnv) Close() {
	if e.pool != nil {
		e.pool.Close()
	}
}

func initServer(ctx context.Context, c *config.Config, reg *prometheus.Registry) (*serverEnv, error) {
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	store := session.NewStore(
		session.WithIdleTimeout(c.Session.IdleTimeout),
		session.WithObserver(m),
	)

	provider, solver := newProvider(c, m)
	aggregator := access.NewAggregator(provider,
		access.WithConfig(access.Config{NormalizeWeights: c.Access.NormalizeWeights}),
		access.WithObserver(m),
	)
	engine := scenario.NewEngine(store, aggregator, solver)

	opts := []api.Option{
		api.WithDefaultTravelMode(c.Access.DefaultTravelMode),
		api.WithSpeeds(c.Speeds()),
		api.WithCORSOrigins(c.Server.CORSOrigins),
		api.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
	}

	env := &serverEnv{Store: store}
	if c.Store.DatabaseURL != "" {
		pool, err := geodata.Connect(ctx, c.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		env.pool = pool
		opts = append(opts, api.WithGeoSource(geodata.New(pool)))
	}

	env.Handler = api.New(store, engine, opts...).Routes()
	return env, nil
}

// newProvider selects the reachability provider. Only the local provider
// can solve set coverage.
func newProvider(c *config.Config, m *metrics.Metrics) (access.Provider, access.SetCoverageSolver) {
	if c.Provider.Kind != "remote" {
		p := crowfly.New(c.Speeds())
		return p, p
	}

	breakerCfg := c.Provider.Circuit.Breaker()
	breakerCfg.OnStateChange = m.BreakerStateChanged

	opts := []oas.Option{
		oas.WithBackoff(c.Provider.Retry.Backoff()),
		oas.WithBreaker(resilience.NewBreaker(breakerCfg)),
	}
	if c.Provider.TimeoutSecs > 0 {
		opts = append(opts, oas.WithHTTPClient(&http.Client{
			Timeout: time.Duration(c.Provider.TimeoutSecs) * time.Second,
		}))
	}
	if c.Provider.RateLimit > 0 {
		opts = append(opts, oas.WithRateLimit(c.Provider.RateLimit))
	}
	return oas.NewClient(c.Provider.URL, opts...), nil
}
