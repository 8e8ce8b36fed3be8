package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/CharanSaiVaddi/purrctl/internal/config"
	"github.com/CharanSaiVaddi/purrctl/internal/server"
)

func ServeCmd(cfg *config.Config, store server.Store, log *logrus.Entry) *cobra.Command {
	var addr string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a local jobs API for development",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = cfg.ListenAddr
			}
			srv := &http.Server{
				Addr:              addr,
				Handler:           server.New(store, log).Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			reaper := server.NewReaper(store, cfg.ReapInterval(), cfg.ReapGrace(), log)
			reaper.Start()

			errCh := make(chan error, 1)
			go func() {
				log.WithField("addr", addr).Info("jobs API listening")
				errCh <- srv.ListenAndServe()
			}()

			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigs)

			var err error
			select {
			case sig := <-sigs:
				log.WithField("signal", sig.String()).Info("shutting down")
			case err = <-errCh:
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if shutdownErr := srv.Shutdown(ctx); shutdownErr != nil {
				log.WithError(shutdownErr).Warn("server shutdown")
			}
			reaper.Stop()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		},
	}
	serveCmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	return serveCmd
}
