// internal/fetch/providers/agro.go
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "agrivoice/internal/common/errors"
	"agrivoice/internal/common/httpclient"
	"agrivoice/internal/common/logger"
)

// AgroClient talks to the agro-monitoring API. Weather and forecast are
// point lookups; soil and UV are polygon lookups, so those calls create a
// short-lived polygon around the coordinate, read it, and delete it again.
type AgroClient struct {
	baseURL string
	apiKey  string
	client  *httpclient.Client
	logger  logger.Logger
}

type AgroConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func NewAgroClient(cfg AgroConfig, log logger.Logger) *AgroClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &AgroClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  httpclient.NewClient(cfg.Timeout),
		logger: log.With(map[string]interface{}{
			"component": "agro_client",
		}),
	}
}

// CurrentWeather fetches current conditions for a coordinate.
func (a *AgroClient) CurrentWeather(ctx context.Context, lat, lon float64) (map[string]interface{}, error) {
	var payload map[string]interface{}
	if err := a.getJSON(ctx, "/agro/1.0/weather", a.pointParams(lat, lon), &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// Forecast fetches the forecast entry list for a coordinate.
func (a *AgroClient) Forecast(ctx context.Context, lat, lon float64) ([]interface{}, error) {
	var payload []interface{}
	if err := a.getJSON(ctx, "/agro/1.0/weather/forecast", a.pointParams(lat, lon), &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// Soil fetches soil readings for a coordinate via a temporary polygon.
func (a *AgroClient) Soil(ctx context.Context, lat, lon float64) (map[string]interface{}, error) {
	return a.polygonLookup(ctx, "/agro/1.0/soil", lat, lon)
}

// UVIndex fetches the UV index for a coordinate via a temporary polygon.
func (a *AgroClient) UVIndex(ctx context.Context, lat, lon float64) (map[string]interface{}, error) {
	return a.polygonLookup(ctx, "/agro/1.0/uvi", lat, lon)
}

func (a *AgroClient) polygonLookup(ctx context.Context, path string, lat, lon float64) (map[string]interface{}, error) {
	polyID, err := a.createTempPolygon(ctx, lat, lon)
	if err != nil {
		return nil, err
	}
	defer a.deletePolygon(polyID)

	params := url.Values{}
	params.Set("polyid", polyID)
	params.Set("appid", a.apiKey)

	var payload map[string]interface{}
	if err := a.getJSON(ctx, path, params, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// squarePolygon builds a closed ~radiusKm square around the coordinate.
// Longitude spacing shrinks toward the poles, hence the cosine correction.
func squarePolygon(lat, lon, radiusKm float64) [][]float64 {
	halfKm := radiusKm / 2.0
	dlat := halfKm / 111.32
	kmPerDegLon := 111.32 * math.Max(0.0001, math.Cos(lat*math.Pi/180.0))
	dlon := halfKm / kmPerDegLon
	return [][]float64{
		{lon - dlon, lat - dlat},
		{lon - dlon, lat + dlat},
		{lon + dlon, lat + dlat},
		{lon + dlon, lat - dlat},
		{lon - dlon, lat - dlat},
	}
}

func (a *AgroClient) createTempPolygon(ctx context.Context, lat, lon float64) (string, error) {
	body := map[string]interface{}{
		"name": fmt.Sprintf("temp-%.5f,%.5f", lat, lon),
		"geo_json": map[string]interface{}{
			"type":       "Feature",
			"properties": map[string]interface{}{},
			"geometry": map[string]interface{}{
				"type":        "Polygon",
				"coordinates": [][][]float64{squarePolygon(lat, lon, 5.0)},
			},
		},
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	endpoint := a.baseURL + "/agro/1.0/polygons?appid=" + url.QueryEscape(a.apiKey)
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", a.mapTransportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		text, _ := io.ReadAll(resp.Body)
		a.logger.Error("create polygon failed", map[string]interface{}{
			"status": resp.StatusCode,
			"body":   string(text),
		})
		return "", fmt.Errorf("polygon create returned %d", resp.StatusCode)
	}

	var created struct {
		ID    string `json:"id"`
		AltID string `json:"_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", apperrors.NewProviderBadPayloadError("polygon", err)
	}
	polyID := created.ID
	if polyID == "" {
		polyID = created.AltID
	}
	if polyID == "" {
		return "", apperrors.NewProviderBadPayloadError("polygon", fmt.Errorf("polygon id missing in response"))
	}
	return polyID, nil
}

// deletePolygon is best effort cleanup. The parent request may already be
// cancelled, so it runs on its own short deadline and failures are only
// logged: a leaked polygon costs quota, not correctness.
func (a *AgroClient) deletePolygon(polyID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	endpoint := a.baseURL + "/agro/1.0/polygons/" + url.PathEscape(polyID) + "?appid=" + url.QueryEscape(a.apiKey)
	req, err := http.NewRequestWithContext(ctx, "DELETE", endpoint, nil)
	if err != nil {
		return
	}
	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Warn("polygon cleanup failed", map[string]interface{}{
			"polygon_id": polyID,
			"error":      err.Error(),
		})
		return
	}
	resp.Body.Close()
}

func (a *AgroClient) pointParams(lat, lon float64) url.Values {
	params := url.Values{}
	params.Set("lat", fmt.Sprintf("%g", lat))
	params.Set("lon", fmt.Sprintf("%g", lon))
	params.Set("appid", a.apiKey)
	return params
}

func (a *AgroClient) getJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	endpoint := a.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return a.mapTransportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(resp.Body)
		a.logger.Error("agro request failed", map[string]interface{}{
			"path":   path,
			"status": resp.StatusCode,
			"body":   string(text),
		})
		return fmt.Errorf("agro API returned %d for %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.NewProviderBadPayloadError(strings.TrimPrefix(path, "/agro/1.0/"), err)
	}
	return nil
}

func (a *AgroClient) mapTransportError(ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded ||
		strings.Contains(err.Error(), "timeout") ||
		strings.Contains(err.Error(), "deadline") ||
		strings.Contains(err.Error(), "Client.Timeout") {
		return apperrors.NewProviderTimeoutError("agro")
	}
	return err
}
