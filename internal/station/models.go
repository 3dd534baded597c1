// Package station joins GBFS station information with live status into the
// simplified station list served to the app.
package station

import "encoding/json"

// VehicleTypes holds the provider specific vehicle_type_id codes that map
// onto the bikes, ebikes and scooters counters.
type VehicleTypes struct {
	Bike    string
	EBike   string
	Scooter string
}

// DefaultVehicleTypes returns the Beryl codes.
func DefaultVehicleTypes() VehicleTypes {
	return VehicleTypes{
		Bike:    "beryl_bike",
		EBike:   "bbe",
		Scooter: "scooter",
	}
}

// MergedStation is one station as served by GET /api/stations.
type MergedStation struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Latitude   float64         `json:"latitude"`
	Longitude  float64         `json:"longitude"`
	Capacity   json.RawMessage `json:"capacity,omitempty"`
	FreeBikes  int             `json:"free_bikes"`
	EmptySlots int             `json:"empty_slots"`
	Bikes      int             `json:"bikes"`
	EBikes     int             `json:"ebikes"`
	Scooters   int             `json:"scooters"`

	// Copied as the feed encoded them; absent when the feed omitted them.
	IsInstalled  json.RawMessage `json:"is_installed,omitempty"`
	IsRenting    json.RawMessage `json:"is_renting,omitempty"`
	IsReturning  json.RawMessage `json:"is_returning,omitempty"`
	LastReported json.RawMessage `json:"last_reported,omitempty"`
}

// Network wraps the station list.
type Network struct {
	Stations []MergedStation `json:"stations"`
}

// NetworkResponse is the body of GET /api/stations.
type NetworkResponse struct {
	Network Network `json:"network"`
}
