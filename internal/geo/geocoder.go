// internal/geo/geocoder.go
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	apperrors "agrivoice/internal/common/errors"
	"agrivoice/internal/common/logger"
)

var ErrPlaceNotFound = errors.New("GEOCODE_NOT_FOUND")

// Geocoder resolves a place name to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, place string) (lat, lon float64, err error)
}

type GeocoderConfig struct {
	OpenWeatherBaseURL string
	OpenWeatherAPIKey  string
	OpenMeteoBaseURL   string
	Timeout            time.Duration
}

// MultiGeocoder fans out to providers in priority order and returns the
// first success. A provider failure is logged and the next one is tried;
// ErrPlaceNotFound is returned only when every provider failed or found
// nothing.
type MultiGeocoder struct {
	config *GeocoderConfig
	client *http.Client
	logger logger.Logger
}

func NewMultiGeocoder(config *GeocoderConfig, log logger.Logger) *MultiGeocoder {
	return &MultiGeocoder{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		logger: log.With(map[string]interface{}{
			"component": "geocoder",
		}),
	}
}

func (g *MultiGeocoder) Geocode(ctx context.Context, place string) (float64, float64, error) {
	if place == "" {
		return 0, 0, ErrPlaceNotFound
	}

	type provider struct {
		name string
		fn   func(context.Context, string) (float64, float64, error)
	}
	providers := []provider{
		{"openweather", g.geocodeOpenWeather},
		{"openmeteo", g.geocodeOpenMeteo},
	}

	for _, p := range providers {
		lat, lon, err := p.fn(ctx, place)
		if err == nil {
			return lat, lon, nil
		}
		g.logger.Warn("geocode provider failed", map[string]interface{}{
			"provider": p.name,
			"place":    place,
			"error":    err.Error(),
		})
	}

	return 0, 0, ErrPlaceNotFound
}

func (g *MultiGeocoder) geocodeOpenWeather(ctx context.Context, place string) (float64, float64, error) {
	if g.config.OpenWeatherAPIKey == "" {
		return 0, 0, apperrors.NewGeocodeFailedError("openweather", errors.New("no api key configured"))
	}

	params := url.Values{}
	params.Set("q", place)
	params.Set("limit", "1")
	params.Set("appid", g.config.OpenWeatherAPIKey)

	req, err := http.NewRequestWithContext(ctx, "GET", g.config.OpenWeatherBaseURL+"/geo/1.0/direct?"+params.Encode(), nil)
	if err != nil {
		return 0, 0, err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, 0, apperrors.NewGeocodeFailedError("openweather", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, apperrors.NewGeocodeFailedError("openweather", fmt.Errorf("status %d", resp.StatusCode))
	}

	var results []struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return 0, 0, apperrors.NewGeocodeFailedError("openweather", err)
	}
	if len(results) == 0 {
		return 0, 0, apperrors.NewGeocodeNotFoundError(place)
	}

	return results[0].Lat, results[0].Lon, nil
}

func (g *MultiGeocoder) geocodeOpenMeteo(ctx context.Context, place string) (float64, float64, error) {
	params := url.Values{}
	params.Set("name", place)
	params.Set("count", "1")

	req, err := http.NewRequestWithContext(ctx, "GET", g.config.OpenMeteoBaseURL+"/v1/search?"+params.Encode(), nil)
	if err != nil {
		return 0, 0, err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, 0, apperrors.NewGeocodeFailedError("openmeteo", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, apperrors.NewGeocodeFailedError("openmeteo", fmt.Errorf("status %d", resp.StatusCode))
	}

	var payload struct {
		Results []struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, 0, apperrors.NewGeocodeFailedError("openmeteo", err)
	}
	if len(payload.Results) == 0 {
		return 0, 0, apperrors.NewGeocodeNotFoundError(place)
	}

	return payload.Results[0].Latitude, payload.Results[0].Longitude, nil
}
