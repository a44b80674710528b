package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pthm/aggui/internal/halfake"
	"github.com/pthm/aggui/internal/logger"
)

var fakeAPICmd = &cobra.Command{
	Use:   "fake-api",
	Short: "Run an in-memory aggregator API with a STOMP broker",
	RunE:  runFakeAPI,
}

func init() {
	f := fakeAPICmd.Flags()
	f.String("addr", ":8080", "listen address")
	f.Int("seed", 5, "number of aggregators to create at startup")
	f.StringSlice("attributes", []string{"name", "description"}, "aggregator attributes, in schema order")
}

func runFakeAPI(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	seed, _ := cmd.Flags().GetInt("seed")
	attrs, _ := cmd.Flags().GetStringSlice("attributes")

	log, err := logger.New("development")
	if err != nil {
		return err
	}
	defer log.Sync()

	api := halfake.New(attrs...)
	api.Seed(seed)
	srv := &http.Server{Addr: addr, Handler: api, ReadHeaderTimeout: 5 * time.Second}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		log.Info("fake API listening", "addr", addr, "api", "/api", "websocket", "/aggregator/websocket", "seed", seed)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	api.Broker().Kick()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
