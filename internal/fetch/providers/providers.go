// internal/fetch/providers/providers.go
package providers

import (
	"time"

	"agrivoice/internal/common/config"
	"agrivoice/internal/common/logger"
	"agrivoice/internal/fetch"
	"agrivoice/internal/llm"
)

// New builds the capability-to-fetcher map the executor dispatches on.
// The agro client is shared across the weather, soil and uv fetchers.
func New(cfg *config.Config, completer llm.Completer, log logger.Logger) map[fetch.Capability]fetch.Fetcher {
	agro := NewAgroClient(AgroConfig{
		BaseURL: cfg.Providers.Agro.BaseURL,
		APIKey:  cfg.Providers.Agro.APIKey,
		Timeout: time.Duration(cfg.Providers.Agro.Timeout) * time.Millisecond,
	}, log)

	mandi := NewMandiFetcher(MandiConfig{
		BaseURL: cfg.Providers.Mandi.BaseURL,
		APIKey:  cfg.Providers.Mandi.APIKey,
		Timeout: time.Duration(cfg.Providers.Mandi.Timeout) * time.Millisecond,
	}, completer, log)

	return map[fetch.Capability]fetch.Fetcher{
		fetch.CapabilityWeather: NewWeatherFetcher(agro),
		fetch.CapabilitySoil:    NewSoilFetcher(agro),
		fetch.CapabilityUV:      NewUVFetcher(agro),
		fetch.CapabilityMandi:   mandi,
	}
}
