// internal/worker/engine.go
package worker

import (
	"context"
	"strings"
	"time"

	"agrivoice/internal/assemble"
	"agrivoice/internal/common/logger"
	"agrivoice/internal/common/metrics"
	"agrivoice/internal/common/observability"
	"agrivoice/internal/fetch"
	"agrivoice/internal/geo"
	"agrivoice/internal/llm"
	"agrivoice/internal/pipeline/router"
	"agrivoice/internal/retrieval"
	"agrivoice/internal/session"
)

// ApologyAnswer is completed into the session when the pipeline fails
// internally, so the polling side never waits out the full ceiling for an
// error the worker already knows about.
const ApologyAnswer = "Sorry, I could not process your request right now. Please try again later."

// Query is one inbound farmer question plus whatever location context the
// caller already has.
type Query struct {
	SessionID string
	Text      string
	Latitude  *float64
	Longitude *float64
	Region    string
}

// Answer is the synchronous pipeline result.
type Answer struct {
	Text      string
	PromptKey string
	Pipelines []string
	GeoSource string
}

// Engine runs the full answer pipeline: route, resolve geography, plan
// and execute fetches, retrieve documents, assemble context, complete.
type Engine struct {
	router    *router.Router
	resolver  *geo.Resolver
	planner   *fetch.Planner
	executor  *fetch.Executor
	assembler *assemble.Assembler
	retriever retrieval.Retriever
	llm       llm.Completer
	store     session.Store
	history   *HistoryRecorder
	obs       *observability.Observability
	logger    logger.Logger
}

type EngineDeps struct {
	Router    *router.Router
	Resolver  *geo.Resolver
	Planner   *fetch.Planner
	Executor  *fetch.Executor
	Assembler *assemble.Assembler
	Retriever retrieval.Retriever
	LLM       llm.Completer
	Store     session.Store
	History   *HistoryRecorder
	Obs       *observability.Observability
}

func NewEngine(deps EngineDeps, log logger.Logger) *Engine {
	return &Engine{
		router:    deps.Router,
		resolver:  deps.Resolver,
		planner:   deps.Planner,
		executor:  deps.Executor,
		assembler: deps.Assembler,
		retriever: deps.Retriever,
		llm:       deps.LLM,
		store:     deps.Store,
		history:   deps.History,
		obs:       deps.Obs,
		logger: log.With(map[string]interface{}{
			"component": "engine",
		}),
	}
}

// Answer runs the pipeline synchronously and returns the completed text.
func (e *Engine) Answer(ctx context.Context, q Query) (*Answer, error) {
	started := time.Now()

	decision, err := e.router.Route(ctx, q.Text)
	if err != nil {
		return nil, err
	}

	gc := e.resolver.Resolve(ctx, geo.Request{
		Latitude:  q.Latitude,
		Longitude: q.Longitude,
		Region:    q.Region,
		Query:     q.Text,
	}, needsGeography(decision))

	tasks := e.planner.Plan(ctx, decision, gc, q.Text, q.Region)
	results := e.executor.Execute(ctx, tasks)

	docs, err := e.retriever.Retrieve(ctx, q.Text)
	if err != nil {
		// Retrieval is an enrichment, not a dependency. Answer from
		// external data alone.
		e.logger.Warn("document retrieval failed", map[string]interface{}{
			"error": err.Error(),
		})
		docs = nil
	}

	fullContext := e.assembler.BuildContext(results, docs)

	text, err := e.llm.Complete(ctx, llm.AnswerPrompt(decision.PromptKey), map[string]string{
		"context":  fullContext,
		"question": q.Text,
	})
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(started)
	metrics.AnswerDuration.WithLabelValues(decision.PromptKey).Observe(elapsed.Seconds())
	if e.obs != nil {
		e.obs.RecordQueryDuration(ctx, decision.PromptKey, elapsed)
		e.obs.RecordQueryProcessed(ctx, "success")
	}

	e.logger.Info("query answered", map[string]interface{}{
		"pipelines":  decision.IDs(),
		"prompt_key": decision.PromptKey,
		"geo_source": string(gc.Source),
		"tasks":      len(tasks),
		"took_ms":    elapsed.Milliseconds(),
	})

	return &Answer{
		Text:      text,
		PromptKey: decision.PromptKey,
		Pipelines: decision.IDs(),
		GeoSource: string(gc.Source),
	}, nil
}

// Process runs the pipeline for an already-begun session and publishes
// the outcome. It is meant to run in its own goroutine; the session is
// completed exactly once on every path, including panics, so the polling
// side never waits out its ceiling for a failure the worker caught.
func (e *Engine) Process(ctx context.Context, q Query) {
	var answer *Answer

	func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("worker panicked", map[string]interface{}{
					"session_id": q.SessionID,
					"panic":      r,
				})
				answer = nil
			}
		}()

		var err error
		answer, err = e.Answer(ctx, q)
		if err != nil {
			e.logger.Error("worker pipeline failed", map[string]interface{}{
				"session_id": q.SessionID,
				"error":      err.Error(),
			})
			answer = nil
		}
	}()

	text := ApologyAnswer
	if answer != nil {
		text = answer.Text
	} else if e.obs != nil {
		e.obs.RecordQueryProcessed(ctx, "failed")
	}

	if err := e.store.Complete(ctx, q.SessionID, text, nil); err != nil {
		e.logger.Error("session complete failed", map[string]interface{}{
			"session_id": q.SessionID,
			"error":      err.Error(),
		})
	}

	if e.history != nil {
		e.history.Record(ctx, q.SessionID, q.Text, text)
	}
}

// needsGeography reports whether any routed pipeline consumes coordinates.
func needsGeography(decision router.Decision) bool {
	for _, id := range decision.IDs() {
		if strings.Contains(id, "weather") || strings.Contains(id, "soil") ||
			strings.Contains(id, "uv") || strings.Contains(id, "irrigation") {
			return true
		}
	}
	return false
}
