// internal/fetch/providers/weather.go
package providers

import (
	"context"
	"fmt"

	apperrors "agrivoice/internal/common/errors"
	"agrivoice/internal/fetch"
)

// WeatherFetcher resolves the weather capability: current conditions plus
// the forecast entry list, merged into one payload for the assembler.
type WeatherFetcher struct {
	agro *AgroClient
}

func NewWeatherFetcher(agro *AgroClient) *WeatherFetcher {
	return &WeatherFetcher{agro: agro}
}

func (f *WeatherFetcher) Fetch(ctx context.Context, task fetch.Task) (map[string]interface{}, error) {
	if task.Weather == nil {
		return nil, fmt.Errorf("weather task missing arguments")
	}

	current, err := f.agro.CurrentWeather(ctx, task.Weather.Lat, task.Weather.Lon)
	if err != nil {
		return nil, apperrors.NewProviderFetchFailedError("weather", err)
	}

	forecast, err := f.agro.Forecast(ctx, task.Weather.Lat, task.Weather.Lon)
	if err != nil {
		return nil, apperrors.NewProviderFetchFailedError("weather", err)
	}

	return map[string]interface{}{
		"today_weather": current,
		"forecast":      forecast,
	}, nil
}
