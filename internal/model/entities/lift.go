package entities

import "fmt"

// Coordinate is a WGS84 point.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Lift is one ski-lift as served by the metadata API. It is replaced wholesale on
// every metadata refresh, never patched.
type Lift struct {
	ID             string  `json:"id"`
	Name           string  `json:"name,omitempty"`
	StartLatitude  float64 `json:"startLatitude"`
	StartLongitude float64 `json:"startLongitude"`
	StartElevation float64 `json:"startElevation,omitempty"`
	EndLatitude    float64 `json:"endLatitude"`
	EndLongitude   float64 `json:"endLongitude"`
	EndElevation   float64 `json:"endElevation,omitempty"`
	SeatCapacity   int     `json:"seatCapacity,omitempty"`
	NumberOfSeats  int     `json:"numberOfSeats,omitempty"`
}

func (l Lift) Start() Coordinate { return Coordinate{Lat: l.StartLatitude, Lng: l.StartLongitude} }
func (l Lift) End() Coordinate   { return Coordinate{Lat: l.EndLatitude, Lng: l.EndLongitude} }

// DisplayName falls back to a short form of the id when the API sends no name.
func (l Lift) DisplayName() string {
	if l.Name != "" {
		return l.Name
	}
	if len(l.ID) > 8 {
		return fmt.Sprintf("lift %s", l.ID[:8])
	}
	return "lift " + l.ID
}
