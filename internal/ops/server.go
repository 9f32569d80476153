// Package ops exposes the daemon's read-only operational HTTP surface:
// health, metrics, queue depth, and recent alerts.
package ops

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/redis/go-redis/v9"
	"github.com/unrolled/secure"

	"github.com/ledgerlink/ledgerlink/internal/alerts"
	"github.com/ledgerlink/ledgerlink/internal/platform/httpx"
	"github.com/ledgerlink/ledgerlink/internal/reconcile"
	"github.com/ledgerlink/ledgerlink/internal/syncqueue"
)

// Pinger checks reachability of one backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

type redisPinger struct {
	rdb redis.UniversalClient
}

// RedisPinger adapts a go-redis client to the Pinger interface.
func RedisPinger(rdb redis.UniversalClient) Pinger {
	return redisPinger{rdb: rdb}
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

// AlertReader serves the recent alert history.
type AlertReader interface {
	Recent(ctx context.Context, limit int) ([]alerts.Alert, error)
}

// QueueCounter reports queue depth per status.
type QueueCounter interface {
	CountByStatus(ctx context.Context) (map[syncqueue.Status]int64, error)
}

// ReconciliationReader serves recent reconciliation records.
type ReconciliationReader interface {
	ListSince(ctx context.Context, since time.Time) ([]reconcile.Record, error)
}

// RouterParams collects everything the ops router serves.
type RouterParams struct {
	Logger     *slog.Logger
	DB         Pinger
	Redis      Pinger
	Queue      QueueCounter
	Recon      ReconciliationReader
	Alerts     AlertReader
	Metrics    http.Handler
	JobsHealth http.Handler
	Production bool
}

// NewRouter builds the ops router with the standard middleware chain.
func NewRouter(p RouterParams) chi.Router {
	if p.Logger == nil {
		p.Logger = slog.Default()
	}

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		SSLRedirect:        p.Production,
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
	})

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if err := secureMiddleware.Process(w, req); err != nil {
				p.Logger.Warn("secure headers blocked request", slog.Any("error", err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Use(middleware.Compress(5))
	r.Use(httprate.Limit(60, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))

	r.Get("/healthz", healthHandler(p))
	if p.Metrics != nil {
		r.Handle("/metrics", p.Metrics)
	}
	r.Get("/queue", queueHandler(p))
	r.Get("/reconciliation/recent", reconciliationHandler(p))
	r.Get("/alerts/recent", alertsHandler(p))
	if p.JobsHealth != nil {
		r.Handle("/jobs/health", p.JobsHealth)
	}
	return r
}

func healthHandler(p RouterParams) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		checks := map[string]string{}
		healthy := true
		if p.DB != nil {
			if err := p.DB.Ping(ctx); err != nil {
				checks["postgres"] = err.Error()
				healthy = false
			} else {
				checks["postgres"] = "ok"
			}
		}
		if p.Redis != nil {
			if err := p.Redis.Ping(ctx); err != nil {
				checks["redis"] = err.Error()
				healthy = false
			} else {
				checks["redis"] = "ok"
			}
		}
		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		httpx.JSON(w, status, map[string]any{"healthy": healthy, "checks": checks})
	}
}

func queueHandler(p RouterParams) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p.Queue == nil {
			httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "queue repository not configured")
			return
		}
		counts, err := p.Queue.CountByStatus(r.Context())
		if err != nil {
			p.Logger.Error("queue depth query", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
		out := make(map[string]int64, len(counts))
		for status, n := range counts {
			out[string(status)] = n
		}
		httpx.JSON(w, http.StatusOK, out)
	}
}

func reconciliationHandler(p RouterParams) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p.Recon == nil {
			httpx.JSON(w, http.StatusOK, []reconcile.Record{})
			return
		}
		since := time.Now().Add(-24 * time.Hour)
		if raw := r.URL.Query().Get("since"); raw != "" {
			parsed, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Bad Request", "since must be RFC3339")
				return
			}
			since = parsed
		}
		records, err := p.Recon.ListSince(r.Context(), since)
		if err != nil {
			p.Logger.Error("reconciliation records query", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
		if records == nil {
			records = []reconcile.Record{}
		}
		httpx.JSON(w, http.StatusOK, records)
	}
}

func alertsHandler(p RouterParams) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p.Alerts == nil {
			httpx.JSON(w, http.StatusOK, []alerts.Alert{})
			return
		}
		limit := 20
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				limit = n
			}
		}
		recent, err := p.Alerts.Recent(r.Context(), limit)
		if err != nil {
			p.Logger.Error("recent alerts query", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
		if recent == nil {
			recent = []alerts.Alert{}
		}
		httpx.JSON(w, http.StatusOK, recent)
	}
}
