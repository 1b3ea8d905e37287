// Copyright (c) 2026 FieldServe. All rights reserved.

package api

import (
	"log/slog"
	"net/http"

	"github.com/nordventa/fieldserve/internal/platform/respond"
)

// HealthDependencies holds the pingers the /ready probe exercises. Both
// backends sit on the authentication hot path: PostgreSQL stores the
// principals, Redis backs the credential throttle.
type HealthDependencies struct {
	// CheckDatabase pings the PostgreSQL pool.
	CheckDatabase func() error

	// CheckCache pings the Redis client.
	CheckCache func() error
}

type healthHandler struct {
	dependencies HealthDependencies
	logger       *slog.Logger
}

// probeResult is one dependency's entry in the readiness payload.
type probeResult struct {
	Name  string `json:"name"`
	IsOK  bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// NewHealthHandlers creates the /health and /ready http.HandlerFuncs.
func NewHealthHandlers(deps HealthDependencies, logger *slog.Logger) (liveness, readiness http.HandlerFunc) {
	handler := &healthHandler{dependencies: deps, logger: logger}
	return handler.liveness, handler.readiness
}

// liveness handles GET /health. It only proves the process is serving;
// dependency state is the readiness probe's job.
func (handler *healthHandler) liveness(writer http.ResponseWriter, request *http.Request) {
	respond.OK(writer, map[string]string{"status": "ok"})
}

// readiness handles GET /ready. A single failing dependency degrades the
// whole instance: logins cannot proceed without the principal store, and the
// throttle loses its cross-replica view without Redis.
func (handler *healthHandler) readiness(writer http.ResponseWriter, request *http.Request) {
	results := []probeResult{
		handler.probe("postgres", handler.dependencies.CheckDatabase),
		handler.probe("redis", handler.dependencies.CheckCache),
	}

	status := "ready"
	httpStatus := http.StatusOK
	for _, result := range results {
		if !result.IsOK {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
			break
		}
	}

	respond.JSON(writer, httpStatus, map[string]any{
		"status": status,
		"checks": results,
	})
}

// probe runs one dependency check. A nil checker counts as healthy so a test
// server can omit backends it does not wire.
func (handler *healthHandler) probe(name string, check func() error) probeResult {
	result := probeResult{Name: name, IsOK: true}
	if check == nil {
		return result
	}

	if err := check(); err != nil {
		result.IsOK = false
		result.Error = err.Error()
		handler.logger.Error("readiness_check_failed",
			slog.String("dependency", name),
			slog.Any("error", err),
		)
	}
	return result
}
