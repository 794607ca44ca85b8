// internal/fetch/task.go
package fetch

import (
	"context"
	"fmt"
)

// Capability names an external data domain.
type Capability string

const (
	CapabilityWeather Capability = "weather"
	CapabilitySoil    Capability = "soil"
	CapabilityUV      Capability = "uv"
	CapabilityMandi   Capability = "mandi"
)

// Task is one planned fetch against an external provider. The argument
// variants are typed per capability so the planner and executor are
// exhaustively checkable; exactly one argument struct is set, matching
// the capability.
type Task struct {
	Capability Capability
	Weather    *WeatherArgs
	Soil       *SoilArgs
	UV         *UVArgs
	Mandi      *MandiArgs
}

type WeatherArgs struct {
	Lat float64
	Lon float64
}

// SoilArgs is keyed by administrative place, not raw coordinates: the
// upstream soil source is indexed by region. Coordinates still ride along
// for the polygon the provider needs.
type SoilArgs struct {
	State string
	City  string
	Lat   float64
	Lon   float64
}

type UVArgs struct {
	Lat float64
	Lon float64
}

type MandiArgs struct {
	Query string
}

// DedupKey derives the planning-pass uniqueness key from the capability
// and its normalized arguments.
func (t Task) DedupKey() string {
	switch t.Capability {
	case CapabilityWeather:
		return fmt.Sprintf("weather|%.4f|%.4f", t.Weather.Lat, t.Weather.Lon)
	case CapabilitySoil:
		return fmt.Sprintf("soil|%s|%s", t.Soil.State, t.Soil.City)
	case CapabilityUV:
		return fmt.Sprintf("uv|%.4f|%.4f", t.UV.Lat, t.UV.Lon)
	case CapabilityMandi:
		return fmt.Sprintf("mandi|%s", t.Mandi.Query)
	}
	return string(t.Capability)
}

// Fetcher is the uniform provider shape consumed by the executor.
type Fetcher interface {
	Fetch(ctx context.Context, task Task) (map[string]interface{}, error)
}

// Result is a per-capability outcome: payload on success, error when the
// provider was unavailable.
type Result struct {
	Data map[string]interface{}
	Err  error
}

// Results maps each executed capability to its outcome.
type Results map[Capability]Result

// Available returns the payload for a capability when its fetch succeeded.
func (r Results) Available(c Capability) (map[string]interface{}, bool) {
	res, ok := r[c]
	if !ok || res.Err != nil {
		return nil, false
	}
	return res.Data, true
}
