// Package httpapi serves the push-subscription registration endpoints the
// frontend calls. It only ever writes to the push registry; the poll loop is
// a pure reader of the same store.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"tapwatch/internal/subscribers"
	"tapwatch/pkg/logx"
)

type Config struct {
	Addr string // default ":3000"
}

type Server struct {
	log      logx.Logger
	registry subscribers.PushRegistry
	validate *validator.Validate

	srv *http.Server
}

// subscriptionRequest mirrors the browser's PushSubscription JSON.
type subscriptionRequest struct {
	Endpoint string `json:"endpoint" validate:"required,url"`
	Keys     struct {
		P256dh string `json:"p256dh" validate:"required"`
		Auth   string `json:"auth" validate:"required"`
	} `json:"keys"`
}

func New(cfg Config, registry subscribers.PushRegistry, log logx.Logger) *Server {
	addr := cfg.Addr
	if addr == "" {
		addr = ":3000"
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	s := &Server{
		log:      log,
		registry: registry,
		validate: validator.New(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Post("/push-subscription", s.handleSubscribe)
	r.Delete("/push-subscription", s.handleUnsubscribe)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

func (s *Server) Start(ctx context.Context) error {
	_ = ctx
	go func() {
		s.log.Info("http api listening", logx.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http api failed", logx.Err(err))
		}
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	err := s.registry.Add(r.Context(), subscribers.PushRecipient{
		Endpoint:  req.Endpoint,
		AuthKey:   req.Keys.Auth,
		P256dhKey: req.Keys.P256dh,
	})
	if err != nil {
		s.log.Error("push subscription add failed", logx.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	endpoint := r.URL.Query().Get("endpoint")
	if err := s.validate.Var(endpoint, "required,url"); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := s.registry.Remove(r.Context(), endpoint); err != nil {
		s.log.Error("push subscription remove failed", logx.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
