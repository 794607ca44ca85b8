// internal/geo/resolver.go
package geo

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"

	"agrivoice/internal/common/logger"
	"agrivoice/internal/common/metrics"
	"agrivoice/internal/llm"
)

// Source records which cascade stage produced the coordinates.
type Source string

const (
	SourceBody          Source = "body"
	SourceRegionGeocode Source = "region_geocode"
	SourceLLMExtraction Source = "llm_extraction"
	SourceRegex         Source = "regex_extraction"
	SourceDefault       Source = "default"
	SourceNone          Source = "none"
)

// Context is the best-effort geographic context for one query. Created
// fresh per query and never persisted.
type Context struct {
	Latitude  *float64
	Longitude *float64
	Source    Source
}

// Resolved reports whether both coordinates are present.
func (c Context) Resolved() bool {
	return c.Latitude != nil && c.Longitude != nil
}

// Request carries the raw geographic signals that arrived with a query.
// Region is an explicit hint from the caller (e.g. telephony metadata);
// it takes precedence over anything extracted from the query text.
type Request struct {
	Latitude  *float64
	Longitude *float64
	Region    string
	Query     string
}

type Resolver struct {
	geocoder   Geocoder
	llm        llm.Completer
	defaultLat float64
	defaultLon float64
	logger     logger.Logger
}

func NewResolver(geocoder Geocoder, completer llm.Completer, defaultLat, defaultLon float64, log logger.Logger) *Resolver {
	return &Resolver{
		geocoder:   geocoder,
		llm:        completer,
		defaultLat: defaultLat,
		defaultLon: defaultLon,
		logger: log.With(map[string]interface{}{
			"component": "geo",
		}),
	}
}

// Resolve walks the coordinate sources in strict priority order and stops
// at the first success. Every stage failure is swallowed and the next
// stage tried. The fixed default applies only when needsGeo is set; an
// unresolved context is a valid outcome otherwise.
func (r *Resolver) Resolve(ctx context.Context, req Request, needsGeo bool) Context {
	if gc, ok := r.fromBody(req); ok {
		return r.record(gc)
	}
	if gc, ok := r.fromRegion(ctx, req); ok {
		return r.record(gc)
	}
	if gc, ok := r.fromLLM(ctx, req); ok {
		return r.record(gc)
	}
	if gc, ok := r.fromRegex(req); ok {
		return r.record(gc)
	}
	if needsGeo {
		lat, lon := r.defaultLat, r.defaultLon
		return r.record(Context{Latitude: &lat, Longitude: &lon, Source: SourceDefault})
	}
	return Context{Source: SourceNone}
}

func (r *Resolver) record(gc Context) Context {
	metrics.GeoResolutions.WithLabelValues(string(gc.Source)).Inc()
	return gc
}

func (r *Resolver) fromBody(req Request) (Context, bool) {
	if req.Latitude == nil || req.Longitude == nil {
		return Context{}, false
	}
	if !validLat(*req.Latitude) || !validLon(*req.Longitude) {
		return Context{}, false
	}
	lat, lon := *req.Latitude, *req.Longitude
	return Context{Latitude: &lat, Longitude: &lon, Source: SourceBody}, true
}

func (r *Resolver) fromRegion(ctx context.Context, req Request) (Context, bool) {
	place := req.Region
	if place == "" {
		place = r.extractRegion(ctx, req.Query)
	}
	if place == "" {
		return Context{}, false
	}

	lat, lon, err := r.geocoder.Geocode(ctx, place)
	if err != nil {
		r.logger.Debug("region geocode failed", map[string]interface{}{
			"place": place,
			"error": err.Error(),
		})
		return Context{}, false
	}
	return Context{Latitude: &lat, Longitude: &lon, Source: SourceRegionGeocode}, true
}

// extractRegion asks the LLM for the place the query is about. Used only
// when no explicit region hint arrived with the request.
func (r *Resolver) extractRegion(ctx context.Context, query string) string {
	if query == "" {
		return ""
	}
	raw, err := r.llm.CompleteJSON(ctx, llm.PlacePrompt, map[string]string{"question": query}, llm.PlaceSchema)
	if err != nil {
		return ""
	}
	var reply struct {
		City  *string `json:"city"`
		State *string `json:"state"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return ""
	}
	switch {
	case reply.City != nil && *reply.City != "":
		return *reply.City
	case reply.State != nil && *reply.State != "":
		return *reply.State
	}
	return ""
}

func (r *Resolver) fromLLM(ctx context.Context, req Request) (Context, bool) {
	if req.Query == "" {
		return Context{}, false
	}
	raw, err := r.llm.CompleteJSON(ctx, llm.CoordinatesPrompt, map[string]string{"question": req.Query}, llm.CoordinatesSchema)
	if err != nil {
		return Context{}, false
	}
	var reply struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return Context{}, false
	}
	if reply.Latitude == nil || reply.Longitude == nil {
		return Context{}, false
	}
	if !validLat(*reply.Latitude) || !validLon(*reply.Longitude) {
		return Context{}, false
	}
	lat, lon := *reply.Latitude, *reply.Longitude
	return Context{Latitude: &lat, Longitude: &lon, Source: SourceLLMExtraction}, true
}

var numberPair = regexp.MustCompile(`(-?\d+(?:\.\d+)?)\s*[, ]\s*(-?\d+(?:\.\d+)?)`)

// fromRegex pulls the first numeric pair out of the raw query text and
// assigns latitude/longitude by whichever ordering satisfies the valid
// ranges. Neither ordering valid means no coordinates.
func (r *Resolver) fromRegex(req Request) (Context, bool) {
	m := numberPair.FindStringSubmatch(req.Query)
	if m == nil {
		return Context{}, false
	}

	a, err1 := strconv.ParseFloat(m[1], 64)
	b, err2 := strconv.ParseFloat(m[2], 64)
	if err1 != nil || err2 != nil {
		return Context{}, false
	}

	if validLat(a) && validLon(b) {
		return Context{Latitude: &a, Longitude: &b, Source: SourceRegex}, true
	}
	if validLat(b) && validLon(a) {
		return Context{Latitude: &b, Longitude: &a, Source: SourceRegex}, true
	}
	return Context{}, false
}

func validLat(v float64) bool { return v >= -90 && v <= 90 }
func validLon(v float64) bool { return v >= -180 && v <= 180 }
