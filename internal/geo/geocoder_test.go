// internal/geo/geocoder_test.go
package geo

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "agrivoice/internal/common/errors"
	"agrivoice/internal/common/logger"
)

func newTestGeocoder(t *testing.T, owURL, omURL, apiKey string) *MultiGeocoder {
	t.Helper()
	return NewMultiGeocoder(&GeocoderConfig{
		OpenWeatherBaseURL: owURL,
		OpenWeatherAPIKey:  apiKey,
		OpenMeteoBaseURL:   omURL,
		Timeout:            2 * time.Second,
	}, logger.NewTestLogger(t))
}

func TestMultiGeocoder_OpenWeatherFirst(t *testing.T) {
	ow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "pune", r.URL.Query().Get("q"))
		assert.Equal(t, "key", r.URL.Query().Get("appid"))
		fmt.Fprint(w, `[{"lat": 18.52, "lon": 73.85}]`)
	}))
	defer ow.Close()

	om := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("fallback provider must not be consulted on success")
	}))
	defer om.Close()

	g := newTestGeocoder(t, ow.URL, om.URL, "key")

	lat, lon, err := g.Geocode(context.Background(), "pune")
	require.NoError(t, err)
	assert.Equal(t, 18.52, lat)
	assert.Equal(t, 73.85, lon)
}

func TestMultiGeocoder_FallsBackToOpenMeteo(t *testing.T) {
	ow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ow.Close()

	om := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "nashik", r.URL.Query().Get("name"))
		fmt.Fprint(w, `{"results": [{"latitude": 19.99, "longitude": 73.79}]}`)
	}))
	defer om.Close()

	g := newTestGeocoder(t, ow.URL, om.URL, "key")

	lat, lon, err := g.Geocode(context.Background(), "nashik")
	require.NoError(t, err)
	assert.Equal(t, 19.99, lat)
	assert.Equal(t, 73.79, lon)
}

func TestMultiGeocoder_NotFoundWhenAllProvidersFail(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer down.Close()

	g := newTestGeocoder(t, down.URL, down.URL, "key")

	_, _, err := g.Geocode(context.Background(), "nowhere")
	assert.ErrorIs(t, err, ErrPlaceNotFound)
}

func TestMultiGeocoder_EmptyPlace(t *testing.T) {
	g := newTestGeocoder(t, "http://unused", "http://unused", "key")

	_, _, err := g.Geocode(context.Background(), "")
	assert.ErrorIs(t, err, ErrPlaceNotFound)
}

func TestGeocodeProviders_StandardizedErrors(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}))
	defer empty.Close()

	g := newTestGeocoder(t, failing.URL, failing.URL, "key")

	var stdErr *apperrors.StandardError

	_, _, err := g.geocodeOpenWeather(context.Background(), "pune")
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, apperrors.ErrCodeGeocodeFailed, stdErr.Code)
	assert.True(t, stdErr.Retryable)

	_, _, err = g.geocodeOpenMeteo(context.Background(), "pune")
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, apperrors.ErrCodeGeocodeFailed, stdErr.Code)

	// No API key is a provider failure, not a not-found.
	noKey := newTestGeocoder(t, failing.URL, failing.URL, "")
	_, _, err = noKey.geocodeOpenWeather(context.Background(), "pune")
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, apperrors.ErrCodeGeocodeFailed, stdErr.Code)

	// A provider that answers but finds nothing reports not-found.
	found := newTestGeocoder(t, empty.URL, empty.URL, "key")
	_, _, err = found.geocodeOpenWeather(context.Background(), "atlantis")
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, apperrors.ErrCodeGeocodeNotFound, stdErr.Code)
	assert.False(t, stdErr.Retryable)
}
