package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HealthChecker defines interface for health checking
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthStatus is the /health body. The process answers 200 even when a
// dependency is down; dependenciesConnected reports the store state.
type HealthStatus struct {
	Message               string `json:"message"`
	DependenciesConnected bool   `json:"dependenciesConnected"`
}

// HealthHandler creates a health check handler
func HealthHandler(logger *zap.Logger, checkers map[string]HealthChecker) http.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		health := HealthStatus{Message: "Server is running", DependenciesConnected: true}
		for name, checker := range checkers {
			if err := checker.Ping(ctx); err != nil {
				health.DependenciesConnected = false
				logger.Warn("health.check_failed", zap.String("dependency", name), zap.Error(err))
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(health)
	}
}
