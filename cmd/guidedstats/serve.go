package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/systemstart/guidedstats/pkg/server"
	"github.com/systemstart/guidedstats/pkg/store"
)

func serveCmd() *cobra.Command {
	var (
		addr        string
		dbPath      string
		templateDir string
		maxDepth    int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve analysis sessions over HTTP and websockets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st, err := store.Open(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			srv := server.New(server.Config{Store: st, TemplateDir: templateDir, MaxDepth: maxDepth})
			defer srv.Close()

			httpServer := &http.Server{
				Addr:              addr,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				slog.Info("listening", "addr", addr, "db", dbPath)
				errCh <- httpServer.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			slog.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", envOr(envAddr, ":8080"), "listen address")
	cmd.Flags().StringVar(&dbPath, "db", envOr(envDB, "guidedstats.db"), "session database path")
	cmd.Flags().StringVar(&templateDir, "template-dir", envOr(envTemplateDir, ""), "directory to search for .guided.yaml templates")
	cmd.Flags().IntVar(&maxDepth, "max-depth", -1, "max directory recursion depth (-1 = unlimited, 0 = root only)")
	return cmd
}
