package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/asaskevich/EventBus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	aggecho "github.com/pthm/aggui/adapters/echo"
	"github.com/pthm/aggui/internal/app"
	"github.com/pthm/aggui/internal/components"
	"github.com/pthm/aggui/internal/config"
	"github.com/pthm/aggui/internal/logger"
	"github.com/pthm/aggui/internal/metrics"
	"github.com/pthm/aggui/internal/notify"
	"github.com/pthm/aggui/internal/rest"
	"github.com/pthm/aggui/internal/server"
	"github.com/pthm/aggui/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the aggregator UI",
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("env-file", ".env", "dotenv file to load before reading the environment")
	f.String("addr", "", "listen address (overrides AGGUI_ADDR)")
	f.String("api-root", "", "HAL API root (overrides AGGUI_API_ROOT)")
	f.String("notify-url", "", "STOMP websocket URL (overrides AGGUI_NOTIFY_URL)")
	f.Int("page-size", 0, "initial page size (overrides AGGUI_PAGE_SIZE)")
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	if v, _ := cmd.Flags().GetString("addr"); v != "" {
		cfg.Addr = v
	}
	if v, _ := cmd.Flags().GetString("api-root"); v != "" {
		cfg.APIRoot = v
	}
	if v, _ := cmd.Flags().GetString("notify-url"); v != "" {
		cfg.NotifyURL = v
	}
	if v, _ := cmd.Flags().GetInt("page-size"); v > 0 {
		cfg.PageSize = v
	}
	return cfg, cfg.Validate()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Env)
	if err != nil {
		return err
	}
	defer log.Sync()

	m := metrics.New()
	bus := EventBus.New()
	client := rest.New(
		rest.WithTimeout(cfg.RequestTimeout),
		rest.WithRetries(cfg.RetryCount),
		rest.WithLogger(log),
	)
	listener := notify.NewListener(cfg.NotifyURL, notify.WithLogger(log), notify.WithMetrics(m))

	sessions := session.NewManager(func(id string) *app.Root {
		return app.New(cfg.APIRoot, client,
			app.WithID(id),
			app.WithBus(bus),
			app.WithLogger(log),
			app.WithMetrics(m),
			app.WithParallelism(cfg.FetchParallel),
			app.WithPageSize(cfg.PageSize),
		)
	}, listener,
		session.WithTTL(cfg.SessionTTL),
		session.WithSecureCookie(cfg.Production()),
		session.WithLogger(log),
		session.WithMetrics(m),
	)
	defer sessions.CloseAll()

	hub := server.NewHub(log)
	if err := hub.Attach(bus); err != nil {
		return err
	}
	defer hub.Detach()

	if cfg.PropsKey == "" {
		log.Warn("AGGUI_PROPS_KEY not set, using a random key; links will not survive a restart")
	}
	reg := aggecho.NewRegistry([]byte(cfg.PropsKey))
	components.Init(reg)

	srv := server.New(server.Options{
		Registry: reg,
		Sessions: sessions,
		Hub:      hub,
		Logger:   log,
		Metrics:  m,
		Ready: func() bool {
			select {
			case <-listener.Ready():
				return true
			default:
				return false
			}
		},
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting", "addr", cfg.Addr, "api", cfg.APIRoot, "notify", cfg.NotifyURL)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return listener.Run(ctx) })
	g.Go(func() error { return srv.Run(ctx, cfg.Addr) })
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("stopped")
	return nil
}
