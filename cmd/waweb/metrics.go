package main

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	waerrors "github.com/waweb-dev/waweb/internal/errors"
	"github.com/waweb-dev/waweb/pkg/client"
	"github.com/waweb-dev/waweb/pkg/telemetry"
)

func metricsCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Stay connected and serve Prometheus metrics",
		Long: `Stay connected with the saved login and serve metrics.

Routes:
  GET /metrics   Prometheus exposition of the connection metrics
  GET /healthz   connection state as JSON, 503 unless authenticated

Examples:
  waweb metrics
  waweb metrics --addr 0.0.0.0:9464`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.cfg.Metrics.Addr
			}
			ctx, stop := ossignal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.runMetrics(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from metrics.addr)")
	return cmd
}

func (a *app) runMetrics(ctx context.Context, addr string) error {
	m := telemetry.NewMetrics(telemetry.WithNamespace(a.cfg.Metrics.Namespace))
	s, err := a.openSession(ctx, client.WithObserver(m))
	if err != nil {
		return err
	}
	defer s.Close()

	events := s.client.Events()
	if err := a.connectAuthenticated(ctx, s, a.cfg.Client.HandshakeTimeout); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return waerrors.New("W101").Wrap(err)
	}
	srv := &http.Server{
		Handler:           newMetricsRouter(m, s.client.Connection),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()
	a.success("Serving metrics on http://%s/metrics", ln.Addr())

	streamErr := a.streamMessages(ctx, s, events)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	if err := <-serveErr; err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		a.logger.Warn("metrics server stopped", "error", err)
	}
	return streamErr
}

// healthStatus is the /healthz body.
type healthStatus struct {
	State            string    `json:"state"`
	Authenticated    bool      `json:"authenticated"`
	Wid              string    `json:"wid,omitempty"`
	Pending          int       `json:"pending"`
	ReconnectAttempt int       `json:"reconnectAttempt"`
	LastTraffic      time.Time `json:"lastTraffic,omitempty"`
}

// newMetricsRouter serves the metrics handler and a health probe backed by
// conn.
func newMetricsRouter(m *telemetry.Metrics, conn func() client.Connection) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(telemetry.Tracing(
		telemetry.WithRequestFilter(func(req *http.Request) bool { return req.URL.Path != "/healthz" }),
	))

	r.Method(http.MethodGet, "/metrics", m.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		c := conn()
		body := healthStatus{
			State:            c.State.String(),
			Authenticated:    c.Authenticated(),
			Wid:              c.Wid,
			Pending:          c.Pending,
			ReconnectAttempt: c.ReconnectAttempt,
			LastTraffic:      c.LastTraffic,
		}
		w.Header().Set("Content-Type", "application/json")
		if !body.Authenticated {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(body)
	})
	return r
}
