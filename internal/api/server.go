// Package api serves the order intake and account endpoints used by the
// game frontend.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"rabbitluck-bot/internal/logger"
	"rabbitluck-bot/internal/models"
	"rabbitluck-bot/internal/referral"
	"rabbitluck-bot/internal/tonaddr"
	"rabbitluck-bot/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

type Ledger interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, id uint) (*models.Order, error)
	BindAddress(ctx context.Context, userID, address string) (*models.User, error)
	FindUser(ctx context.Context, userID string) (*models.User, error)
}

type Counters interface {
	Balance(ctx context.Context, accountID string) (float64, bool, error)
	CardCount(ctx context.Context, accountID string) (int64, bool, error)
	Seed(ctx context.Context, accountID string, balance float64, cards int64) error
}

type Registrar interface {
	Register(ctx context.Context, reg referral.Registration) (referral.Result, error)
}

type Config struct {
	Ledger    Ledger
	Counters  Counters
	Referrals Registrar
	// Metrics defaults to the Prometheus default gatherer.
	Metrics http.Handler
	// AllowedCIDRs restricts /api/v1 to these networks; empty allows all.
	AllowedCIDRs []string
	Log          logrus.FieldLogger
}

type Server struct {
	ledger    Ledger
	counters  Counters
	referrals Registrar
	metrics   http.Handler
	allowed   []*net.IPNet
	validate  *validator.Validate
	log       logrus.FieldLogger
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Ledger == nil || cfg.Counters == nil {
		return nil, errors.New("api: ledger and counters are required")
	}
	allowed, err := utils.ParseCIDRs(cfg.AllowedCIDRs)
	if err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	log := cfg.Log
	if log == nil {
		log = logger.Discard()
	}

	validate := validator.New()
	if err := validate.RegisterValidation("tonaddr", func(fl validator.FieldLevel) bool {
		return tonaddr.Valid(fl.Field().String())
	}); err != nil {
		return nil, fmt.Errorf("api: register validator: %w", err)
	}

	return &Server{
		ledger:    cfg.Ledger,
		counters:  cfg.Counters,
		referrals: cfg.Referrals,
		metrics:   metrics,
		allowed:   allowed,
		validate:  validate,
		log:       log.WithField("component", "api"),
	}, nil
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", s.metrics)

	r.Route("/api/v1", func(sr chi.Router) {
		if len(s.allowed) > 0 {
			sr.Use(s.allowlist)
		}
		sr.Post("/orders", s.handleCreateOrder)
		sr.Get("/orders/{id}", s.handleGetOrder)
		sr.Post("/users", s.handleCreateUser)
		sr.Post("/users/address", s.handleBindAddress)
		sr.Get("/users/{id}/balance", s.handleBalance)
	})
	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	}
}

func (s *Server) allowlist(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := utils.ClientIP(r)
		if !utils.IsAllowedIP(ip, s.allowed) {
			s.log.WithField("ip", ip).Warn("request from disallowed address")
			jsonError(w, http.StatusForbidden, errors.New("address not allowed"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"took":       time.Since(started).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("http request")
	})
}
