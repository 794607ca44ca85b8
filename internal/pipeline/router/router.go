// internal/pipeline/router/router.go
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	apperrors "agrivoice/internal/common/errors"
	"agrivoice/internal/common/logger"
	"agrivoice/internal/common/metrics"
	"agrivoice/internal/llm"
	"agrivoice/internal/pipeline/registry"
)

// Decision is the ordered set of pipelines chosen for one query, plus the
// effective prompt key after the combination tie-break.
type Decision struct {
	Pipelines []registry.Definition
	PromptKey string
}

// IDs returns the routed pipeline ids in order.
func (d Decision) IDs() []string {
	ids := make([]string, 0, len(d.Pipelines))
	for _, p := range d.Pipelines {
		ids = append(ids, p.ID)
	}
	return ids
}

// Contains reports whether a pipeline id was routed.
func (d Decision) Contains(id string) bool {
	for _, p := range d.Pipelines {
		if p.ID == id {
			return true
		}
	}
	return false
}

type Router struct {
	registry *registry.Registry
	llm      llm.Completer
	logger   logger.Logger
}

func New(reg *registry.Registry, completer llm.Completer, log logger.Logger) *Router {
	return &Router{
		registry: reg,
		llm:      completer,
		logger: log.With(map[string]interface{}{
			"component": "router",
		}),
	}
}

// Route classifies the query against the registry. Classification failure
// of any kind falls back to the registry's default pipeline; routing never
// returns an empty decision for a loaded registry.
func (r *Router) Route(ctx context.Context, query string) (Decision, error) {
	defs, err := r.registry.Definitions()
	if err != nil {
		return Decision{}, apperrors.NewRoutingFailedError(err)
	}

	picked := r.classify(ctx, query, defs)
	if len(picked) == 0 {
		picked = []registry.Definition{defs[len(defs)-1]}
	}

	for _, p := range picked {
		metrics.QueriesRouted.WithLabelValues(p.ID).Inc()
	}

	return Decision{
		Pipelines: picked,
		PromptKey: effectivePromptKey(picked, defs),
	}, nil
}

// classify returns the valid routed subset, or nil when classification
// cannot produce one.
func (r *Router) classify(ctx context.Context, query string, defs []registry.Definition) []registry.Definition {
	if strings.TrimSpace(query) == "" {
		return nil
	}

	raw, err := r.llm.CompleteJSON(ctx, llm.ClassifyPrompt, map[string]string{
		"pipelines": renderListing(defs),
		"question":  query,
	}, llm.ClassifySchema)
	if err != nil {
		r.logger.Warn("classification failed, using default pipeline", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}

	var reply struct {
		Pipelines []string `json:"pipelines"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil
	}

	byID := make(map[string]registry.Definition, len(defs))
	for _, d := range defs {
		byID[d.ID] = d
	}

	var picked []registry.Definition
	seen := make(map[string]bool)
	for _, id := range reply.Pipelines {
		id = strings.TrimSpace(id)
		d, ok := byID[id]
		if !ok || seen[id] {
			// Unknown ids are ignored, not errors
			continue
		}
		seen[id] = true
		picked = append(picked, d)
	}

	return picked
}

// effectivePromptKey applies the multi-pipeline tie-break: the irrigation
// template wins when irrigation is routed or when weather and soil are
// routed together, because those answers must weigh both data sources.
func effectivePromptKey(picked, defs []registry.Definition) string {
	hasWeather, hasSoil := false, false
	for _, p := range picked {
		if isWeatherPipeline(p.ID) {
			hasWeather = true
		}
		if isSoilPipeline(p.ID) {
			hasSoil = true
		}
		if isIrrigationPipeline(p.ID) {
			return p.PromptKey
		}
	}
	if hasWeather && hasSoil {
		// Even unrouted, the registered irrigation pipeline owns the key
		// for the combined answer.
		for _, d := range defs {
			if isIrrigationPipeline(d.ID) {
				return d.PromptKey
			}
		}
		return "irrigation"
	}
	for _, p := range picked {
		if isWeatherPipeline(p.ID) || isSoilPipeline(p.ID) {
			return p.PromptKey
		}
	}
	return picked[0].PromptKey
}

func isWeatherPipeline(id string) bool {
	return strings.Contains(id, "weather")
}

func isSoilPipeline(id string) bool {
	return strings.Contains(id, "soil")
}

func isIrrigationPipeline(id string) bool {
	return strings.Contains(id, "irrigation")
}

func renderListing(defs []registry.Definition) string {
	var b strings.Builder
	for _, d := range defs {
		fmt.Fprintf(&b, "- id: %s | prompt_key: %s | %s\n", d.ID, d.PromptKey, d.Description)
	}
	return b.String()
}
