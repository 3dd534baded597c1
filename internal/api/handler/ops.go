// Package handler provides HTTP handlers for the Belfast Bikes API.
package handler

import (
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/belfastbikes/belfastbikes/internal/api/models"
	"github.com/belfastbikes/belfastbikes/internal/api/response"
	"github.com/belfastbikes/belfastbikes/internal/provider/resilience"
)

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	registry  *resilience.Registry
}

// NewOpsHandler creates a new OpsHandler. registry may be nil.
func NewOpsHandler(version, buildTime string, registry *resilience.Registry) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		registry:  registry,
	}
}

// HealthCheck handles GET /api/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /api/status - upstream feed status.
// The overall status is the worst provider status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:    models.HealthStatusOK,
		Time:      models.Timestamp(time.Now()),
		Providers: []models.ProviderStatus{},
	}

	if h.registry != nil {
		for _, health := range h.registry.GetAllHealth() {
			ps := providerStatus(health)
			if severity(ps.Status) > severity(status.Status) {
				status.Status = ps.Status
			}
			status.Providers = append(status.Providers, ps)
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}

func providerStatus(health *resilience.ProviderHealth) models.ProviderStatus {
	ps := models.ProviderStatus{
		Provider:     health.Name,
		Status:       models.HealthStatusOK,
		CircuitState: health.CircuitState.String(),
	}

	switch health.CircuitState {
	case gobreaker.StateHalfOpen:
		ps.Status = models.HealthStatusDegraded
	case gobreaker.StateOpen:
		ps.Status = models.HealthStatusFail
	}

	if health.LastSuccessAt != nil {
		ts := models.Timestamp(*health.LastSuccessAt)
		ps.LastSuccessAt = &ts
	}
	if health.LastFailureAt != nil {
		ts := models.Timestamp(*health.LastFailureAt)
		ps.LastFailureAt = &ts
	}
	if health.LastError != "" {
		msg := health.LastError
		ps.Message = &msg
	}

	return ps
}

func severity(s models.HealthStatus) int {
	switch s {
	case models.HealthStatusDegraded:
		return 1
	case models.HealthStatusFail:
		return 2
	default:
		return 0
	}
}
