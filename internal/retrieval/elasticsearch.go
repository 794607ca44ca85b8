// internal/retrieval/elasticsearch.go
package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/elastic/go-elasticsearch/v8"

	"agrivoice/internal/common/config"
	apperrors "agrivoice/internal/common/errors"
	"agrivoice/internal/common/logger"
)

// ElasticsearchRetriever queries an advisory knowledge index with a plain
// match query over title and content.
type ElasticsearchRetriever struct {
	client *elasticsearch.Client
	index  string
	topK   int
	logger logger.Logger
}

func NewElasticsearchRetriever(cfg *config.RetrievalConfig, log logger.Logger) (*ElasticsearchRetriever, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	topK := cfg.TopK
	if topK <= 0 {
		topK = 4
	}

	return &ElasticsearchRetriever{
		client: client,
		index:  cfg.Index,
		topK:   topK,
		logger: log.With(map[string]interface{}{
			"component": "retriever",
		}),
	}, nil
}

func (r *ElasticsearchRetriever) Retrieve(ctx context.Context, query string) ([]Document, error) {
	if query == "" {
		return nil, nil
	}

	body := map[string]interface{}{
		"size": r.topK,
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": []string{"title", "content"},
			},
		},
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	res, err := r.client.Search(
		r.client.Search.WithContext(ctx),
		r.client.Search.WithIndex(r.index),
		r.client.Search.WithBody(bytes.NewReader(raw)),
	)
	if err != nil {
		return nil, apperrors.NewRetrievalFailedError(err)
	}
	defer res.Body.Close()

	if res.IsError() {
		text, _ := io.ReadAll(res.Body)
		r.logger.Error("search request failed", map[string]interface{}{
			"status": res.StatusCode,
			"body":   string(text),
		})
		return nil, apperrors.NewRetrievalFailedError(fmt.Errorf("search returned %d", res.StatusCode))
	}

	var reply struct {
		Hits struct {
			Hits []struct {
				ID     string  `json:"_id"`
				Score  float64 `json:"_score"`
				Source struct {
					Title   string `json:"title"`
					Content string `json:"content"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&reply); err != nil {
		return nil, apperrors.NewRetrievalFailedError(err)
	}

	docs := make([]Document, 0, len(reply.Hits.Hits))
	for _, hit := range reply.Hits.Hits {
		docs = append(docs, Document{
			ID:      hit.ID,
			Title:   hit.Source.Title,
			Content: hit.Source.Content,
			Score:   hit.Score,
		})
	}
	return docs, nil
}
