package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var addrFlag string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve sessions over HTTP/JSON",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&addrFlag, "addr", "", "listen address (default from PROBE_HTTP_ADDR or :8080)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	mgr, err := a.NewManager()
	if err != nil {
		return err
	}
	defer mgr.Close()

	srv := &http.Server{
		Addr:              a.Config.HTTPAddr,
		Handler:           a.NewServer(mgr).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		a.Logger.Info("Starting HTTP server", "addr", srv.Addr, "root", a.Config.SourceRoot)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.Logger.Info("Shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
