// internal/fetch/planner.go
package fetch

import (
	"context"
	"encoding/json"
	"strings"

	apperrors "agrivoice/internal/common/errors"
	"agrivoice/internal/common/logger"
	"agrivoice/internal/geo"
	"agrivoice/internal/llm"
	"agrivoice/internal/pipeline/router"
)

// Planner maps a routing decision and resolved geo context to a
// deduplicated set of fetch tasks.
type Planner struct {
	llm    llm.Completer
	logger logger.Logger
}

func NewPlanner(completer llm.Completer, log logger.Logger) *Planner {
	return &Planner{
		llm: completer,
		logger: log.With(map[string]interface{}{
			"component": "planner",
		}),
	}
}

// Plan applies the per-pipeline rules. Rules that require geography are
// skipped when coordinates never resolved; an empty plan is a valid
// outcome and the answer proceeds on documents alone. The region hint is
// the caller-supplied one: when present it wins over anything extracted
// from the query text.
func (p *Planner) Plan(ctx context.Context, decision router.Decision, gc geo.Context, query, region string) []Task {
	var tasks []Task
	planned := make(map[string]bool)

	add := func(t Task) {
		key := t.DedupKey()
		if planned[key] {
			return
		}
		planned[key] = true
		tasks = append(tasks, t)
	}

	// The soil task is built at most once per pass: its place extraction
	// may consult the model, and a second call could return a different
	// place, splitting one logical task into two.
	var soil *Task
	soilOnce := func() Task {
		if soil == nil {
			t := p.soilTask(ctx, gc, query, region)
			soil = &t
		}
		return *soil
	}

	needsCombo := false
	hasWeatherRoute, hasSoilRoute := false, false

	for _, def := range decision.Pipelines {
		id := def.ID
		switch {
		case strings.Contains(id, "irrigation"):
			needsCombo = true

		case strings.Contains(id, "weather"):
			hasWeatherRoute = true
			if gc.Resolved() {
				add(Task{Capability: CapabilityWeather, Weather: &WeatherArgs{Lat: *gc.Latitude, Lon: *gc.Longitude}})
			}

		case strings.Contains(id, "soil"):
			hasSoilRoute = true
			if gc.Resolved() {
				add(soilOnce())
			}

		case strings.Contains(id, "uv"):
			if gc.Resolved() {
				add(Task{Capability: CapabilityUV, UV: &UVArgs{Lat: *gc.Latitude, Lon: *gc.Longitude}})
			}

		case strings.Contains(id, "mandi") || strings.Contains(id, "market"):
			add(Task{Capability: CapabilityMandi, Mandi: &MandiArgs{Query: query}})
		}
	}

	// Irrigation, or weather and soil routed together, force both tasks
	// even when one side was not independently routed.
	if (needsCombo || (hasWeatherRoute && hasSoilRoute)) && gc.Resolved() {
		add(Task{Capability: CapabilityWeather, Weather: &WeatherArgs{Lat: *gc.Latitude, Lon: *gc.Longitude}})
		add(soilOnce())
	}

	return tasks
}

// soilTask resolves the city/state hint the soil source is indexed by.
// An explicit region hint wins; otherwise the place is extracted from the
// query. Extraction failure degrades to empty place fields and the
// provider works from coordinates alone.
func (p *Planner) soilTask(ctx context.Context, gc geo.Context, query, region string) Task {
	city, state := splitRegionHint(region)
	if city == "" && state == "" {
		city, state = p.extractPlace(ctx, query)
	}
	return Task{
		Capability: CapabilitySoil,
		Soil: &SoilArgs{
			State: state,
			City:  city,
			Lat:   *gc.Latitude,
			Lon:   *gc.Longitude,
		},
	}
}

func (p *Planner) extractPlace(ctx context.Context, query string) (city, state string) {
	raw, err := p.llm.CompleteJSON(ctx, llm.PlacePrompt, map[string]string{"question": query}, llm.PlaceSchema)
	if err != nil {
		p.logger.Debug("place extraction failed", map[string]interface{}{
			"error": apperrors.NewExtractionFailedError("place", err).Error(),
		})
		return "", ""
	}
	var reply struct {
		City  *string `json:"city"`
		State *string `json:"state"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return "", ""
	}
	if reply.City != nil {
		city = titleCase(*reply.City)
	}
	if reply.State != nil {
		state = titleCase(*reply.State)
	}
	return city, state
}

// splitRegionHint parses a "City, State[, Country]" hint as supplied by
// telephony metadata.
func splitRegionHint(region string) (city, state string) {
	parts := strings.Split(region, ",")
	if len(parts) > 0 {
		city = titleCase(parts[0])
	}
	if len(parts) > 1 {
		state = titleCase(parts[1])
	}
	return city, state
}

func titleCase(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
