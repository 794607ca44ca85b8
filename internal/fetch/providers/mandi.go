// internal/fetch/providers/mandi.go
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "agrivoice/internal/common/errors"
	"agrivoice/internal/common/httpclient"
	"agrivoice/internal/common/logger"
	"agrivoice/internal/fetch"
	"agrivoice/internal/llm"
)

const (
	defaultMandiLimit  = 10
	defaultMandiOffset = 0
)

// MandiFilters are the structured query filters sent to the commodity
// price API. Zero-valued string fields are omitted from the request.
type MandiFilters struct {
	State     string
	District  string
	Market    string
	Commodity string
	Variety   string
	Grade     string
	Limit     int
	Offset    int
}

// MandiFetcher resolves the mandi capability. The raw query text is first
// turned into structured filters by the language model, then the filtered
// record page is fetched from the open government data API. Extraction
// failures degrade to an unfiltered fetch rather than failing the task.
type MandiFetcher struct {
	baseURL string
	apiKey  string
	client  *httpclient.Client
	llm     llm.Completer
	logger  logger.Logger
}

type MandiConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func NewMandiFetcher(cfg MandiConfig, completer llm.Completer, log logger.Logger) *MandiFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &MandiFetcher{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  httpclient.NewClient(cfg.Timeout),
		llm:     completer,
		logger: log.With(map[string]interface{}{
			"component": "mandi_fetcher",
		}),
	}
}

func (f *MandiFetcher) Fetch(ctx context.Context, task fetch.Task) (map[string]interface{}, error) {
	if task.Mandi == nil {
		return nil, fmt.Errorf("mandi task missing arguments")
	}

	filters := f.ExtractFilters(ctx, task.Mandi.Query)

	data, err := f.fetchRecords(ctx, filters)
	if err != nil {
		return nil, apperrors.NewProviderFetchFailedError("mandi", err)
	}
	return data, nil
}

// ExtractFilters asks the model for structured filters and normalizes the
// reply: name fields are title cased, null-like placeholder strings drop
// to empty, and limit/offset fall back to defaults.
func (f *MandiFetcher) ExtractFilters(ctx context.Context, query string) MandiFilters {
	filters := MandiFilters{Limit: defaultMandiLimit, Offset: defaultMandiOffset}

	raw, err := f.llm.CompleteJSON(ctx, llm.MandiFiltersPrompt,
		map[string]string{"question": query}, llm.MandiFiltersSchema)
	if err != nil {
		f.logger.Warn("mandi filter extraction failed, fetching unfiltered", map[string]interface{}{
			"error": apperrors.NewExtractionFailedError("mandi_filters", err).Error(),
		})
		return filters
	}

	var extracted struct {
		State     *string `json:"state"`
		District  *string `json:"district"`
		Market    *string `json:"market"`
		Commodity *string `json:"commodity"`
		Variety   *string `json:"variety"`
		Grade     *string `json:"grade"`
		Limit     *int    `json:"limit"`
		Offset    *int    `json:"offset"`
	}
	if err := json.Unmarshal(raw, &extracted); err != nil {
		return filters
	}

	filters.State = cleanName(extracted.State)
	filters.District = cleanName(extracted.District)
	filters.Market = cleanName(extracted.Market)
	filters.Commodity = cleanName(extracted.Commodity)
	filters.Variety = cleanName(extracted.Variety)
	filters.Grade = cleanFilterValue(extracted.Grade)
	if extracted.Limit != nil && *extracted.Limit > 0 {
		filters.Limit = *extracted.Limit
	}
	if extracted.Offset != nil && *extracted.Offset >= 0 {
		filters.Offset = *extracted.Offset
	}
	return filters
}

func (f *MandiFetcher) fetchRecords(ctx context.Context, filters MandiFilters) (map[string]interface{}, error) {
	params := url.Values{}
	params.Set("api-key", f.apiKey)
	params.Set("format", "json")
	params.Set("limit", strconv.Itoa(filters.Limit))
	params.Set("offset", strconv.Itoa(filters.Offset))

	addFilter := func(key, val string) {
		if val != "" {
			params.Set("filters["+key+"]", val)
		}
	}
	addFilter("state.keyword", filters.State)
	addFilter("district", filters.District)
	addFilter("market", filters.Market)
	addFilter("commodity", filters.Commodity)
	addFilter("variety", filters.Variety)
	addFilter("grade", filters.Grade)

	endpoint := f.baseURL + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded ||
			strings.Contains(err.Error(), "timeout") ||
			strings.Contains(err.Error(), "deadline") ||
			strings.Contains(err.Error(), "Client.Timeout") {
			return nil, apperrors.NewProviderTimeoutError("mandi")
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(resp.Body)
		f.logger.Error("mandi request failed", map[string]interface{}{
			"status": resp.StatusCode,
			"body":   string(text),
		})
		return nil, fmt.Errorf("mandi API returned %d", resp.StatusCode)
	}

	var payload struct {
		Records []interface{} `json:"records"`
		Total   int           `json:"total"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, apperrors.NewProviderBadPayloadError("mandi", err)
	}

	total := payload.Total
	if total == 0 {
		total = len(payload.Records)
	}
	return map[string]interface{}{
		"mandi_records": payload.Records,
		"total":         total,
	}, nil
}

var nullLikeValues = map[string]struct{}{
	"not specified": {},
	"na":            {},
	"n/a":           {},
	"none":          {},
	"null":          {},
	"-":             {},
	"unknown":       {},
}

// cleanFilterValue trims a filter string and drops null-like placeholders
// models tend to emit instead of an actual null.
func cleanFilterValue(v *string) string {
	if v == nil {
		return ""
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return ""
	}
	if _, nullLike := nullLikeValues[strings.ToLower(s)]; nullLike {
		return ""
	}
	return s
}

func cleanName(v *string) string {
	s := cleanFilterValue(v)
	if s == "" {
		return ""
	}
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
