package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sttworker/pkg/types"
)

// Service defines the methods required by the control plane.
type Service interface {
	ListModels() []types.Model
	Status() types.StatusResponse
	History(ctx context.Context, limit int) ([]types.TaskSummary, error)
	Ready() bool

	// SetEnabled applies an enabled change and returns an error message for
	// the host, or "" on success.
	SetEnabled(ctx context.Context, enabled bool) string
	Trigger(providerID string)
	// InitDone tells the host initialisation has finished.
	InitDone(ctx context.Context) error
}

func NewMux(svc Service, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(opts.Logger))
	r.Use(MetricsMiddleware)
	r.Use(middleware.Recoverer)
	if opts.CORSEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		}))
	}
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	r.Use(AppAPIAuth(opts.AppID, opts.AppSecret))

	historyLimit := opts.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}

	// AppAPI lifecycle callbacks.
	r.Put("/enabled", func(w http.ResponseWriter, r *http.Request) {
		enabled, ok := parseFlag(r.URL.Query().Get("enabled"))
		if !ok {
			writeJSONError(w, http.StatusBadRequest, "enabled must be 0 or 1")
			return
		}
		writeJSON(w, http.StatusOK, types.EnabledResponse{Error: svc.SetEnabled(r.Context(), enabled)})
	})

	r.Post("/trigger", func(w http.ResponseWriter, r *http.Request) {
		svc.Trigger(r.URL.Query().Get("providerId"))
		writeJSON(w, http.StatusOK, struct{}{})
	})

	r.Post("/init", func(w http.ResponseWriter, r *http.Request) {
		if err := svc.InitDone(r.Context()); err != nil {
			writeJSONError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, struct{}{})
	})

	r.Get("/heartbeat", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, types.HeartbeatResponse{Status: "ok"})
	})

	// Operator endpoints.
	r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, types.ModelsResponse{Models: svc.ListModels()})
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status())
	})

	r.Get("/history", func(w http.ResponseWriter, r *http.Request) {
		limit := historyLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = min(n, maxHistoryLimit)
		}
		entries, err := svc.History(r.Context(), limit)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if entries == nil {
			entries = []types.TaskSummary{}
		}
		writeJSON(w, http.StatusOK, types.HistoryResponse{Entries: entries})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("starting"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

func parseFlag(v string) (bool, bool) {
	switch v {
	case "1", "true":
		return true, true
	case "0", "false":
		return false, true
	}
	return false, false
}
