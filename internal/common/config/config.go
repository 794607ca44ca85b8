// internal/common/config/config.go
package config

// Config is the main application configuration struct.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Geocoding GeocodingConfig `mapstructure:"geocoding"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Session   SessionConfig   `mapstructure:"session"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	ListenAddress  string `mapstructure:"listen_address"`
	MetricsAddress string `mapstructure:"metrics_address"`
	PipelinesFile  string `mapstructure:"pipelines_file"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LLMConfig holds settings for the completion API used for routing,
// extraction sub-tasks, and the final answer.
type LLMConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	Timeout int    `mapstructure:"timeout"` // milliseconds
}

// GeocodingConfig holds geocoder provider settings and the fixed fallback
// coordinate used when a routed pipeline requires geography that never
// resolved through any other stage.
type GeocodingConfig struct {
	OpenWeatherBaseURL string  `mapstructure:"openweather_base_url"`
	OpenWeatherAPIKey  string  `mapstructure:"openweather_api_key"`
	OpenMeteoBaseURL   string  `mapstructure:"openmeteo_base_url"`
	Timeout            int     `mapstructure:"timeout"` // milliseconds
	DefaultLatitude    float64 `mapstructure:"default_latitude"`
	DefaultLongitude   float64 `mapstructure:"default_longitude"`
}

// ProvidersConfig holds settings for the external data providers.
type ProvidersConfig struct {
	Agro struct {
		BaseURL string `mapstructure:"base_url"`
		APIKey  string `mapstructure:"api_key"`
		Timeout int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"agro"`

	Mandi struct {
		BaseURL string `mapstructure:"base_url"`
		APIKey  string `mapstructure:"api_key"`
		Timeout int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"mandi"`
}

// RetrievalConfig holds settings for the document retrieval collaborator.
type RetrievalConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
	TopK      int      `mapstructure:"top_k"`
}

// SessionConfig holds session store lifecycle settings and the polling
// protocol settings. The interval and ceiling are enforced by the polling
// loop, not by the store.
type SessionConfig struct {
	TTL          int `mapstructure:"ttl"`           // seconds
	ReapInterval int `mapstructure:"reap_interval"` // seconds
	PollInterval int `mapstructure:"poll_interval"` // milliseconds
	PollCeiling  int `mapstructure:"poll_ceiling"`  // milliseconds

	// WorkerDeadline bounds a background worker run and must exceed
	// PollCeiling, or workers would be cut off while pollers still wait.
	WorkerDeadline int `mapstructure:"worker_deadline"` // milliseconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
