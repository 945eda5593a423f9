package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"telegram-vpn-provisioning/internal/usecase"
)

// requestTimeout bounds API calls; provisioning runs inside Create.
const requestTimeout = 2 * time.Minute

// Server is the admin HTTP API over the client registry and pending purchases.
type Server struct {
	lifecycle      usecase.LifecycleUseCase
	purchase       usecase.PurchaseUseCase
	auth           *AuthManager
	approverID     int64
	expiringWindow time.Duration
	log            *zerolog.Logger
}

func NewServer(
	lifecycle usecase.LifecycleUseCase,
	purchase usecase.PurchaseUseCase,
	auth *AuthManager,
	approverID int64,
	expiringWindow time.Duration,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "WebServer").Logger()
	return &Server{
		lifecycle:      lifecycle,
		purchase:       purchase,
		auth:           auth,
		approverID:     approverID,
		expiringWindow: expiringWindow,
		log:            &l,
	}
}

// Routes builds the router: health and metrics are public, /api/v1 needs a token.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), Recover(s.log), RequestLog(s.log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.auth.Middleware, Timeout(requestTimeout))
		r.Get("/stats", s.stats)
		r.Get("/plans", s.plans)

		r.Route("/clients", func(r chi.Router) {
			r.Get("/", s.listClients)
			r.Post("/", s.createClient)
			r.Get("/{id}", s.getClient)
			r.Delete("/{id}", s.deleteClient)
			r.Post("/{id}/renew", s.renewClient)
		})

		r.Route("/purchases", func(r chi.Router) {
			r.Get("/", s.listPurchases)
			r.Post("/{requester}/approve", s.approvePurchase)
			r.Post("/{requester}/reject", s.rejectPurchase)
		})
	})
	return r
}

// ListenAndServe serves on port until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", srv.Addr).Msg("admin api listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
