package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/fintrack/internal/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the ledger over HTTP",
	Long: `Start the JSON API. Requests act for the owner in the X-Owner header,
or the configured owner when the header is absent.

Examples:
  fintrack serve --addr :8080`,
	Args: cobra.NoArgs,
	RunE: withApp(runServe),
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
}

func runServe(ctx context.Context, a *app, args []string) error {
	addr := a.cfg.Server.Address
	if serveAddr != "" {
		addr = serveAddr
	}
	api := httpapi.New(httpapi.Config{DefaultOwner: a.owner, Mode: a.cfg.Server.Mode},
		a.ledger, a.savings, a.portfolio, a.log)

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		a.log.Info("http: listening", "addr", addr, "owner", a.owner)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info("http: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
