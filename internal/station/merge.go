package station

import "github.com/belfastbikes/belfastbikes/internal/gbfs"

// Merge left-joins statuses onto infos by station id. Output order follows
// infos; statuses without a matching info are dropped and, for duplicate
// status ids, the last record wins.
func Merge(infos []gbfs.StationInfo, statuses []gbfs.StationStatus, types VehicleTypes) []MergedStation {
	byID := make(map[gbfs.StationID]*gbfs.StationStatus, len(statuses))
	for i := range statuses {
		byID[statuses[i].StationID] = &statuses[i]
	}

	merged := make([]MergedStation, 0, len(infos))
	for _, info := range infos {
		status, ok := byID[info.StationID]
		if !ok {
			status = &gbfs.StationStatus{}
		}
		merged = append(merged, mergeOne(info, status, types))
	}
	return merged
}

func mergeOne(info gbfs.StationInfo, status *gbfs.StationStatus, types VehicleTypes) MergedStation {
	counts := status.VehicleCounts()

	return MergedStation{
		ID:           string(info.StationID),
		Name:         info.Name,
		Latitude:     info.Lat,
		Longitude:    info.Lon,
		Capacity:     info.Capacity,
		FreeBikes:    int(status.NumBikesAvailable),
		EmptySlots:   int(status.NumDocksAvailable),
		Bikes:        counts[types.Bike],
		EBikes:       counts[types.EBike],
		Scooters:     counts[types.Scooter],
		IsInstalled:  status.IsInstalled,
		IsRenting:    status.IsRenting,
		IsReturning:  status.IsReturning,
		LastReported: status.LastReported,
	}
}
