// internal/fetch/providers/soil.go
package providers

import (
	"context"
	"fmt"

	apperrors "agrivoice/internal/common/errors"
	"agrivoice/internal/fetch"
)

// SoilFetcher resolves the soil capability. The upstream source reads per
// polygon, so the client wraps the coordinate in a temporary one; the
// payload carries moisture and the 0cm/10cm temperatures.
type SoilFetcher struct {
	agro *AgroClient
}

func NewSoilFetcher(agro *AgroClient) *SoilFetcher {
	return &SoilFetcher{agro: agro}
}

func (f *SoilFetcher) Fetch(ctx context.Context, task fetch.Task) (map[string]interface{}, error) {
	if task.Soil == nil {
		return nil, fmt.Errorf("soil task missing arguments")
	}

	data, err := f.agro.Soil(ctx, task.Soil.Lat, task.Soil.Lon)
	if err != nil {
		return nil, apperrors.NewProviderFetchFailedError("soil", err)
	}
	return data, nil
}
