// internal/fetch/providers/uv.go
package providers

import (
	"context"
	"fmt"

	apperrors "agrivoice/internal/common/errors"
	"agrivoice/internal/fetch"
)

// UVFetcher resolves the uv capability through the same temporary polygon
// lifecycle the soil lookup uses.
type UVFetcher struct {
	agro *AgroClient
}

func NewUVFetcher(agro *AgroClient) *UVFetcher {
	return &UVFetcher{agro: agro}
}

func (f *UVFetcher) Fetch(ctx context.Context, task fetch.Task) (map[string]interface{}, error) {
	if task.UV == nil {
		return nil, fmt.Errorf("uv task missing arguments")
	}

	data, err := f.agro.UVIndex(ctx, task.UV.Lat, task.UV.Lon)
	if err != nil {
		return nil, apperrors.NewProviderFetchFailedError("uv", err)
	}
	return data, nil
}
