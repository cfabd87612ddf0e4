package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"masterhand/internal/config"
	"masterhand/internal/domain"
	"masterhand/internal/logging"
	"masterhand/internal/models"
	"masterhand/internal/payment"
	"masterhand/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

type OfferService interface {
	SubmitOffer(ctx context.Context, craftsmanID, requestID int64, in service.OfferInput) (*models.Offer, error)
	Accept(ctx context.Context, customerID, offerID int64) (*service.AcceptResult, error)
	Reject(ctx context.Context, customerID, offerID int64, reason string) (*models.Offer, error)
	Withdraw(ctx context.Context, craftsmanID, offerID int64) (*models.Offer, error)
}

type BookingService interface {
	CreateAndInitiatePayment(ctx context.Context, customerID, offerID int64, method string) (*service.BookingPayment, error)
	CompleteBooking(ctx context.Context, craftsmanID, bookingID int64) (*models.Booking, error)
	VerifyPayment(ctx context.Context, customerID, paymentID int64) (*service.PaymentVerification, error)
	DeletePayment(ctx context.Context, customerID, paymentID int64) error
}

type CancellationService interface {
	CancelForCustomer(ctx context.Context, customerID, bookingID int64, reason string) (*service.CancelResult, error)
}

type WebhookProcessor interface {
	Process(ctx context.Context, cb *payment.Callback) (*service.WebhookResult, error)
}

// Services are the use cases exposed over HTTP.
type Services struct {
	Offers        OfferService
	Bookings      BookingService
	Cancellations CancellationService
	Webhooks      WebhookProcessor
}

// ReadinessCheck is one dependency probed by /readyz.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Server is the HTTP API.
type Server struct {
	cfg     config.APIConfig
	svc     Services
	auth    *authenticator
	limiter *rateLimiter
	checks  []ReadinessCheck
	log     *zerolog.Logger
	router  *chi.Mux
	server  *http.Server
}

// NewServer wires routes and middleware. keys may be nil, in which case rate
// limits are enforced per process only.
func NewServer(cfg config.APIConfig, svc Services, keys domain.KeyStore, logger *zerolog.Logger, checks ...ReadinessCheck) *Server {
	log := logging.Component(logger, "http")
	s := &Server{
		cfg:     cfg,
		svc:     svc,
		auth:    newAuthenticator(cfg.Auth),
		limiter: newRateLimiter(cfg.RateLimit, keys, log),
		checks:  checks,
		log:     log,
		router:  chi.NewRouter(),
	}
	s.routes()

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      45 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RealIP)
	r.Use(s.requestID)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		// the gateway authenticates with the callback signature
		r.Post("/payments/webhook", s.handleWebhook)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.middleware)
			r.Use(s.limiter.middleware)

			r.Group(func(r chi.Router) {
				r.Use(requireRole(RoleCraftsman))
				r.Post("/requests/{id}/offers", s.handleSubmitOffer)
				r.Post("/offers/{id}/withdraw", s.handleWithdrawOffer)
				r.Post("/bookings/{id}/complete", s.handleCompleteBooking)
			})

			r.Group(func(r chi.Router) {
				r.Use(requireRole(RoleCustomer))
				r.Post("/offers/{id}/accept", s.handleAcceptOffer)
				r.Post("/offers/{id}/reject", s.handleRejectOffer)
				r.Post("/bookings", s.handleCreateBooking)
				r.Post("/bookings/{id}/cancel", s.handleCancelBooking)
				r.Get("/payments/{id}/verify", s.handleVerifyPayment)
				r.Delete("/payments/{id}", s.handleDeletePayment)
			})
		})
	})
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Serve runs the API on an existing listener.
func (s *Server) Serve(l net.Listener) error {
	if err := s.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		s.log.Warn().Err(err).Msg("HTTP graceful shutdown timed out; forcing close")
		return s.server.Close()
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := map[string]string{}
	for _, c := range s.checks {
		if err := c.Check(ctx); err != nil {
			s.log.Warn().Err(err).Str("check", c.Name).Msg("readiness check failed")
			failed[c.Name] = "unavailable"
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "checks": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
