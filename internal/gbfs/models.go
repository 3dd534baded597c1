// Package gbfs reads station feeds from a GBFS-style bike share provider.
package gbfs

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Feed names, as they appear in the feed file names.
const (
	FeedStationInformation = "station_information"
	FeedStationStatus      = "station_status"
)

// ErrParse is returned when a feed body is not the expected JSON document.
var ErrParse = errors.New("malformed feed")

// UpstreamError is returned when a feed answers with a non-success status.
// While the feed's breaker is open, StatusCode is the last status seen and
// Err is resilience.ErrCircuitOpen.
type UpstreamError struct {
	Feed       string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s feed responded with %d: %v", e.Feed, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s feed responded with %d", e.Feed, e.StatusCode)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// StationID is a station identifier kept in its text form. Providers are
// inconsistent about emitting ids as JSON strings or numbers.
type StationID string

// UnmarshalJSON accepts a JSON string, number or null.
func (id *StationID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*id = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = StationID(s)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("station id: %w", err)
		}
		*id = StationID(canonicalNumber(n))
	}
	return nil
}

// canonicalNumber renders integral numbers without exponent or fraction so
// 42, 42.0 and 4.2e1 all map to "42".
func canonicalNumber(n json.Number) string {
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10)
	}
	if f, err := n.Float64(); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return n.String()
}

// Count is a station counter. Integral floats and numeric strings are
// accepted; null or any other value counts as zero.
type Count int

// UnmarshalJSON never fails.
func (c *Count) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err == nil {
			data = []byte(strings.TrimSpace(s))
		}
	}

	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		*c = 0
		return nil
	}
	*c = Count(f)
	return nil
}

// StationInfo is a record of station_information.json. Capacity is kept as
// raw JSON and passed through unchanged.
type StationInfo struct {
	StationID StationID       `json:"station_id"`
	Name      string          `json:"name"`
	Lat       float64         `json:"lat"`
	Lon       float64         `json:"lon"`
	Capacity  json.RawMessage `json:"capacity,omitempty"`
}

// VehicleTypeCount is one entry of vehicle_types_available.
type VehicleTypeCount struct {
	VehicleTypeID string `json:"vehicle_type_id"`
	Count         Count  `json:"count"`
}

// StationStatus is a record of station_status.json. The flags and
// last_reported are raw JSON: nil when the feed omits them, otherwise the
// value exactly as the feed encoded it.
type StationStatus struct {
	StationID             StationID          `json:"station_id"`
	NumBikesAvailable     Count              `json:"num_bikes_available"`
	NumDocksAvailable     Count              `json:"num_docks_available"`
	VehicleTypesAvailable []VehicleTypeCount `json:"vehicle_types_available,omitempty"`
	IsInstalled           json.RawMessage    `json:"is_installed,omitempty"`
	IsRenting             json.RawMessage    `json:"is_renting,omitempty"`
	IsReturning           json.RawMessage    `json:"is_returning,omitempty"`
	LastReported          json.RawMessage    `json:"last_reported,omitempty"`
}

// VehicleCounts indexes vehicle_types_available by type id. Later entries win.
func (s *StationStatus) VehicleCounts() map[string]int {
	counts := make(map[string]int, len(s.VehicleTypesAvailable))
	for _, vt := range s.VehicleTypesAvailable {
		counts[vt.VehicleTypeID] = int(vt.Count)
	}
	return counts
}

// envelope is the common GBFS file wrapper.
type envelope[T any] struct {
	LastUpdated int64 `json:"last_updated"`
	TTL         int   `json:"ttl"`
	Data        *struct {
		Stations []T `json:"stations"`
	} `json:"data"`
}
