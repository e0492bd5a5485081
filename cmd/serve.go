package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-cli/internal/api"
	"github.com/sells-group/catalog-cli/internal/event"
	"github.com/sells-group/catalog-cli/internal/monitoring"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the catalog HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		stopEvents := logEvents(env.Bus)
		defer stopEvents()

		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(env.Stats, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			go checker.Run(ctx)
		}

		handler := api.New(env.Pipeline, env.Batch, env.Store, env.Tiers, cfg.Server).
			WithStats(env.Stats, cfg.Monitoring.LookbackWindowMins).
			Handler()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		ln, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			return eris.Wrap(err, "server listen")
		}

		zap.L().Info("starting server", zap.Int("port", port))
		// env.Close runs only after in-flight handlers have returned.
		return runServer(ctx, srv, ln, shutdownGrace)
	},
}

// shutdownGrace bounds how long in-flight requests may run after a signal.
const shutdownGrace = 15 * time.Second

// runServer serves on ln until ctx is done, then shuts down gracefully and
// returns once in-flight handlers have finished or grace has elapsed.
func runServer(ctx context.Context, srv *http.Server, ln net.Listener, grace time.Duration) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return eris.Wrap(err, "server serve")
	case <-ctx.Done():
	}

	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		_ = srv.Close()
		return eris.Wrap(err, "server shutdown")
	}
	<-errCh
	return nil
}

// logEvents logs task and image events until the returned stop is called.
func logEvents(bus *event.Bus) func() {
	ch, unsubscribe := bus.Subscribe(event.TaskFinished, event.ImagesUpdated)
	go func() {
		for e := range ch {
			zap.L().Debug("event", zap.String("type", string(e.Type)), zap.String("item_id", e.ItemID))
		}
	}()
	return unsubscribe
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
