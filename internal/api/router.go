package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/learningops/lmsync/internal/auth"
	"github.com/learningops/lmsync/internal/config"
	"github.com/learningops/lmsync/internal/database"
)

// NewRouter assembles the admin API surface: login, sync trigger, job
// history, sync status, health and metrics.
func NewRouter(
	authHandler *AuthHandler,
	syncHandler *SyncHandler,
	authCfg config.AuthConfig,
	metricsHandler http.Handler,
	db *sql.DB,
	logger *slog.Logger,
) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := database.HealthCheck(r.Context(), db); err != nil {
			logger.Error("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.Handle("/metrics", metricsHandler)
	mux.HandleFunc("/api/auth/login", authHandler.Login)

	protect := auth.Middleware(authCfg)
	mux.Handle("/api/sync", protect(http.HandlerFunc(syncHandler.TriggerSync)))
	mux.Handle("/api/jobs", protect(http.HandlerFunc(syncHandler.ListJobs)))
	mux.Handle("/api/jobs/", protect(http.HandlerFunc(syncHandler.GetJob)))
	mux.Handle("/api/status", protect(http.HandlerFunc(syncHandler.Status)))

	return mux
}
