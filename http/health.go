// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/z5labs/queuein"
	"github.com/z5labs/queuein/health"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Health endpoint paths.
const (
	LivenessPath  = "/health/liveness"
	ReadinessPath = "/health/readiness"
)

type healthResponse struct {
	Healthy bool `json:"healthy"`
}

// HealthHandler serves liveness and readiness probes. Liveness always
// reports healthy while the process serves requests. Readiness asks the
// monitor and answers 503 while it is unhealthy.
func HealthHandler(readiness health.Monitor) http.Handler {
	log := queuein.Logger("github.com/z5labs/queuein/http")

	r := chi.NewRouter()
	r.Get(LivenessPath, func(w http.ResponseWriter, req *http.Request) {
		writeHealth(w, true)
	})
	r.Get(ReadinessPath, func(w http.ResponseWriter, req *http.Request) {
		healthy, err := readiness.Healthy(req.Context())
		if err != nil {
			log.WarnContext(req.Context(), "readiness check failed", slog.Any("error", err))
		}
		writeHealth(w, healthy && err == nil)
	})

	return otelhttp.NewHandler(r, "health")
}

func writeHealth(w http.ResponseWriter, healthy bool) {
	w.Header().Set("Content-Type", "application/json")
	if !healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(healthResponse{Healthy: healthy})
}
