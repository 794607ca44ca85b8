// internal/pipeline/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	apperrors "agrivoice/internal/common/errors"
)

// Definition is an immutable pipeline record. Identity is the ID.
type Definition struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	PromptKey   string `json:"prompt_key"`
}

// documentSchema validates the overall shape of the pipelines file. Records
// missing id or prompt_key pass document validation and are dropped
// individually at load time.
const documentSchema = `{
	"type": "array",
	"items": {
		"type": "object",
		"properties": {
			"id": {"type": "string"},
			"description": {"type": "string"},
			"prompt_key": {"type": "string"}
		}
	}
}`

// Registry loads pipeline definitions from a JSON file once and serves
// read-only lookups. The backing file is a startup precondition: a missing
// or malformed file fails the first Load and every subsequent one.
type Registry struct {
	path string

	mu     sync.Mutex
	loaded []Definition
}

func New(path string) *Registry {
	return &Registry{path: path}
}

// Load reads, validates, and memoizes the pipeline definitions. Idempotent:
// after the first successful load the cached snapshot is returned.
func (r *Registry) Load() ([]Definition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loaded != nil {
		return r.loaded, nil
	}

	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, apperrors.NewRegistryLoadFailedError(fmt.Errorf("read pipelines file: %w", err))
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(documentSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, apperrors.NewRegistryLoadFailedError(fmt.Errorf("validate pipelines file: %w", err))
	}
	if !result.Valid() {
		return nil, apperrors.NewRegistryLoadFailedError(fmt.Errorf("pipelines file malformed: %v", result.Errors()))
	}

	var raw []Definition
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, apperrors.NewRegistryLoadFailedError(fmt.Errorf("parse pipelines file: %w", err))
	}

	defs := make([]Definition, 0, len(raw))
	for _, d := range raw {
		// Records without id or prompt_key are dropped silently
		if d.ID == "" || d.PromptKey == "" {
			continue
		}
		defs = append(defs, d)
	}
	if len(defs) == 0 {
		return nil, apperrors.NewRegistryLoadFailedError(fmt.Errorf("pipelines file %s contains no usable definitions", r.path))
	}

	r.loaded = defs
	return r.loaded, nil
}

// Definitions returns the memoized snapshot, loading on first use.
func (r *Registry) Definitions() ([]Definition, error) {
	return r.Load()
}

// Lookup returns the definition with the given id.
func (r *Registry) Lookup(id string) (Definition, bool) {
	defs, err := r.Load()
	if err != nil {
		return Definition{}, false
	}
	for _, d := range defs {
		if d.ID == id {
			return d, true
		}
	}
	return Definition{}, false
}

// Default returns the designated fallback pipeline: the last-registered one.
func (r *Registry) Default() (Definition, error) {
	defs, err := r.Load()
	if err != nil {
		return Definition{}, err
	}
	return defs[len(defs)-1], nil
}
