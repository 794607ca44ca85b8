// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	// Base config
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like AGRO_API_KEY
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment-specific overlay, ignored if not found
	envConfigFile := fmt.Sprintf("config.%s", env)
	viper.SetConfigName(envConfigFile)
	_ = viper.MergeInConfig()

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	// Try multiple paths so binaries and tests can run from nested directories
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		if strVal, ok := val.(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// Direct override if config values are still empty after expansion
func overrideEmptyConfig(cfg *Config) {
	if cfg.LLM.APIKey == "" {
		if val := os.Getenv("LLM_API_KEY"); val != "" {
			cfg.LLM.APIKey = val
		}
	}
	if cfg.Geocoding.OpenWeatherAPIKey == "" {
		if val := os.Getenv("OPENWEATHER_API_KEY"); val != "" {
			cfg.Geocoding.OpenWeatherAPIKey = val
		}
	}
	if cfg.Providers.Agro.APIKey == "" {
		if val := os.Getenv("AGRO_API_KEY"); val != "" {
			cfg.Providers.Agro.APIKey = val
		}
	}
	if cfg.Providers.Mandi.APIKey == "" {
		if val := os.Getenv("DATA_GOV_API_KEY"); val != "" {
			cfg.Providers.Mandi.APIKey = val
		}
	}
	if cfg.Redis.Password == "" {
		if val := os.Getenv("REDIS_PASSWORD"); val != "" {
			cfg.Redis.Password = val
		}
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = ":8000"
	}
	if cfg.Server.MetricsAddress == "" {
		cfg.Server.MetricsAddress = ":9090"
	}
	if cfg.Server.PipelinesFile == "" {
		cfg.Server.PipelinesFile = "configs/pipelines.json"
	}

	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.mistral.ai"
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 30000
	}

	if cfg.Geocoding.OpenWeatherBaseURL == "" {
		cfg.Geocoding.OpenWeatherBaseURL = "https://api.openweathermap.org"
	}
	if cfg.Geocoding.OpenMeteoBaseURL == "" {
		cfg.Geocoding.OpenMeteoBaseURL = "https://geocoding-api.open-meteo.com"
	}
	if cfg.Geocoding.Timeout == 0 {
		cfg.Geocoding.Timeout = 10000
	}
	// Pune, the deployment's home region
	if cfg.Geocoding.DefaultLatitude == 0 && cfg.Geocoding.DefaultLongitude == 0 {
		cfg.Geocoding.DefaultLatitude = 18.5204
		cfg.Geocoding.DefaultLongitude = 73.8567
	}

	if cfg.Providers.Agro.BaseURL == "" {
		cfg.Providers.Agro.BaseURL = "http://api.agromonitoring.com"
	}
	if cfg.Providers.Agro.Timeout == 0 {
		cfg.Providers.Agro.Timeout = 15000
	}
	if cfg.Providers.Mandi.BaseURL == "" {
		cfg.Providers.Mandi.BaseURL = "https://api.data.gov.in"
	}
	if cfg.Providers.Mandi.Timeout == 0 {
		cfg.Providers.Mandi.Timeout = 20000
	}

	if cfg.Retrieval.Index == "" {
		cfg.Retrieval.Index = "farm_docs"
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 4
	}

	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = 600
	}
	if cfg.Session.ReapInterval == 0 {
		cfg.Session.ReapInterval = 60
	}
	if cfg.Session.PollInterval == 0 {
		cfg.Session.PollInterval = 3000
	}
	if cfg.Session.PollCeiling == 0 {
		cfg.Session.PollCeiling = 60000
	}
	if cfg.Session.WorkerDeadline == 0 {
		cfg.Session.WorkerDeadline = 90000
	}
	if cfg.Session.WorkerDeadline <= cfg.Session.PollCeiling {
		cfg.Session.WorkerDeadline = cfg.Session.PollCeiling + 30000
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Redis.Address == "" {
		return fmt.Errorf("redis.address is required")
	}
	if cfg.LLM.BaseURL == "" {
		return fmt.Errorf("llm.base_url is required")
	}
	if cfg.Server.PipelinesFile == "" {
		return fmt.Errorf("server.pipelines_file is required")
	}
	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
