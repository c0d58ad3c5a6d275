package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinicore/booking-engine/internal/auth"
	"github.com/clinicore/booking-engine/internal/booking"
)

type RouterConfig struct {
	Service   *booking.Service
	PgPool    *pgxpool.Pool
	Redis     *redis.Client
	JWTSecret string
	Env       string
	Version   string
	Log       zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Everything else requires a resolved actor.
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.JWTSecret))

		r.Get("/providers/{id}/availability", getAvailabilityHandler(cfg.Service))
		r.Put("/providers/{id}/availability", setAvailabilityHandler(cfg.Service))
		r.Get("/providers/{id}/slot-check", validateSlotHandler(cfg.Service))
		r.Get("/providers/{id}/appointments", listProviderAppointmentsHandler(cfg.Service))

		r.Post("/appointments", createAppointmentHandler(cfg.Service))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
		r.Post("/appointments/{id}/confirm", transitionHandler(cfg.Service, booking.StatusConfirmada))
		r.Post("/appointments/{id}/complete", transitionHandler(cfg.Service, booking.StatusCompletada))
		r.Post("/appointments/{id}/cancel", transitionHandler(cfg.Service, booking.StatusCancelada))
	})

	return r
}
