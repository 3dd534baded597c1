package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/belfastbikes/belfastbikes/internal/api/models"
	"github.com/belfastbikes/belfastbikes/internal/api/response"
	"github.com/belfastbikes/belfastbikes/internal/gbfs"
	"github.com/belfastbikes/belfastbikes/internal/station"
)

// StationService is the station aggregator used by StationsHandler.
type StationService interface {
	Network(ctx context.Context) (*station.NetworkResponse, error)
	StatusSample(ctx context.Context, limit int) ([]gbfs.StationStatus, error)
}

// StationsHandler handles station endpoints.
type StationsHandler struct {
	stations StationService
}

// NewStationsHandler creates a new StationsHandler.
func NewStationsHandler(stations StationService) *StationsHandler {
	return &StationsHandler{stations: stations}
}

// List handles GET /api/stations - the merged station network.
func (h *StationsHandler) List(w http.ResponseWriter, r *http.Request) {
	network, err := h.stations.Network(r.Context())
	if err != nil {
		response.InternalError(w, r, models.MessageStationsFailed, err.Error())
		return
	}
	response.JSON(w, r, http.StatusOK, network)
}

// DebugStatus handles GET /api/debug/status - the first raw status records.
func (h *StationsHandler) DebugStatus(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			response.BadRequest(w, r, "limit must be an integer")
			return
		}
		limit = n
	}

	statuses, err := h.stations.StatusSample(r.Context(), limit)
	if err != nil {
		response.InternalError(w, r, models.MessageStationsFailed, err.Error())
		return
	}
	response.JSON(w, r, http.StatusOK, statuses)
}
