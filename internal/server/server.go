// Package server exposes the quote, service address, size option, voicemail
// and email-event webhook HTTP API.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/pestline/pestline/internal/model"
	"github.com/pestline/pestline/internal/quote"
	"github.com/pestline/pestline/internal/sesevents"
	"github.com/pestline/pestline/internal/voicemail"
)

// Store is the read access the API needs.
type Store interface {
	GetQuote(ctx context.Context, id string) (*model.Quote, error)
	ListLineItems(ctx context.Context, quoteID string) ([]model.QuoteLineItem, error)
	GetPricingSettings(ctx context.Context, companyID string) (*model.CompanyPricingSettings, error)
	GetServicePlan(ctx context.Context, id string) (*model.ServicePlan, error)
	GetServiceAddress(ctx context.Context, id string) (*model.ServiceAddress, error)
	Ping(ctx context.Context) error
}

// Recalculator reprices quotes.
type Recalculator interface {
	Recalculate(ctx context.Context, quoteID string, upd quote.SizeUpdate) error
	ForServiceAddress(ctx context.Context, addressID string, upd quote.SizeUpdate) ([]string, error)
}

// Voicemail sends voicemail drops.
type Voicemail interface {
	Send(ctx context.Context, req voicemail.Request) (*voicemail.Response, error)
	Status() voicemail.Status
}

// Verifier checks SNS signatures.
type Verifier interface {
	Verify(ctx context.Context, env *sesevents.Envelope) error
}

// Confirmer confirms SNS subscriptions.
type Confirmer interface {
	Confirm(ctx context.Context, env *sesevents.Envelope) error
}

// EventProcessor applies SES events.
type EventProcessor interface {
	ProcessMessage(ctx context.Context, message string) error
}

// Deps are the server's collaborators. Verifier may be nil to accept
// unsigned webhook messages. Voicemail may be nil when the integration is
// not wired.
type Deps struct {
	Store     Store
	Recalc    Recalculator
	Voicemail Voicemail
	Verifier  Verifier
	Confirmer Confirmer
	Events    EventProcessor
}

// Options configures the router.
type Options struct {
	AllowedOrigins []string
	Timeout        time.Duration
	Logger         *zap.Logger
}

// Server holds the HTTP handlers.
type Server struct {
	deps Deps
	log  *zap.Logger
}

// New builds the chi router.
func New(deps Deps, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = zap.L()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	s := &Server{deps: deps, log: opts.Logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.Timeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id", "Retry-After"},
		MaxAge:         300,
	}))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, req, http.StatusNotFound, "route_not_found", "no route for "+req.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, req, http.StatusMethodNotAllowed, "method_not_allowed", "method "+req.Method+" not allowed on "+req.URL.Path)
	})

	r.Get("/health", s.health)

	r.Route("/api/v1", func(api chi.Router) {
		api.Get("/companies/{companyID}/size-options", s.sizeOptions)

		api.Route("/quotes/{quoteID}", func(qr chi.Router) {
			qr.Get("/", s.getQuote)
			qr.Put("/", s.updateQuote)
			qr.Post("/recalculate", s.recalculateQuote)
		})

		api.Put("/service-addresses/{addressID}/sizes", s.updateAddressSizes)

		api.Post("/voicemail", s.sendVoicemail)
		api.Get("/voicemail/status", s.voicemailStatus)
	})

	r.Route("/webhooks/ses-events", func(wr chi.Router) {
		wr.Get("/", s.sesLiveness)
		wr.Post("/", s.sesWebhook)
	})

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.Ping(r.Context()); err != nil {
		s.log.Warn("server: health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
