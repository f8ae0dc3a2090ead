package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/fx"

	"github.com/tigerroll/imagelink/pkg/linker/core/application/usecase"
	config "github.com/tigerroll/imagelink/pkg/linker/core/config"
	"github.com/tigerroll/imagelink/pkg/linker/infrastructure/metrics"
	"github.com/tigerroll/imagelink/pkg/linker/listener/notification"
	"github.com/tigerroll/imagelink/pkg/linker/support/util/logger"
)

// ServerParams are the inputs of NewHTTPServer.
type ServerParams struct {
	fx.In
	Lifecycle   fx.Lifecycle
	Config      *config.Config
	Trigger     *usecase.TriggerService
	Broadcaster *notification.Broadcaster
	Prometheus  *metrics.PrometheusRecorder `optional:"true"`
}

// NewHTTPServer creates the http.Server and ties it to the fx lifecycle. The listener is
// opened on start so a bad address fails the application immediately.
func NewHTTPServer(p ServerParams) *http.Server {
	cfg := p.Config.Linker.Server
	srv := &http.Server{
		Addr: cfg.Address,
		Handler: Server{
			Sessions:    p.Trigger,
			Broadcaster: p.Broadcaster,
			Prometheus:  p.Prometheus,
		}.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			logger.Infof("HTTP server listening on %s.", ln.Addr())
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Errorf("HTTP server stopped: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			timeout := time.Duration(cfg.ShutdownTimeoutSeconds) * time.Second
			if timeout <= 0 {
				timeout = 15 * time.Second
			}
			shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			logger.Infof("Shutting down HTTP server.")
			return srv.Shutdown(shutdownCtx)
		},
	})
	return srv
}

// Module starts the HTTP server.
var Module = fx.Options(
	fx.Provide(NewHTTPServer),
	fx.Invoke(func(*http.Server) {}),
)
