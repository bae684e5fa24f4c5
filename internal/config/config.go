package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"r4r-detector/internal/detector"
	"r4r-detector/internal/provider"
)

// Config represents the application configuration.
type Config struct {
	App      AppConfig       `yaml:"app"`
	Provider provider.Config `yaml:"provider"`
	Engine   detector.Config `yaml:"engine"`
	Analysis AnalysisConfig  `yaml:"analysis"`
	Cache    CacheConfig     `yaml:"cache"`
	Server   ServerConfig    `yaml:"server"`
	Logging  LoggingConfig   `yaml:"logging"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"` // development, production
}

// AnalysisConfig bounds the analysis workloads.
type AnalysisConfig struct {
	// Budget is the hard wall-clock limit for a single analysis.
	Budget time.Duration `yaml:"budget"`
	// MaxConcurrency bounds parallel fetches in a network scan.
	MaxConcurrency int `yaml:"max_concurrency"`
	// MaxBatchSize bounds how many userkeys one network scan may cover.
	MaxBatchSize int `yaml:"max_batch_size"`
}

// CacheConfig holds report memoization settings.
type CacheConfig struct {
	ReportCapacity  int           `yaml:"report_capacity"`
	ReportTTL       time.Duration `yaml:"report_ttl"`
	NetworkCapacity int           `yaml:"network_capacity"`
	NetworkTTL      time.Duration `yaml:"network_ttl"`
}

// ServerConfig holds the REST API settings.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	EnableCORS   bool          `yaml:"enable_cors"`
	EnableAuth   bool          `yaml:"enable_auth"`
	APIKey       string        `yaml:"api_key"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level"`  // debug, info, warn, error
	Output   string `yaml:"output"` // stdout, file, both
	Filename string `yaml:"filename"`
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:        "R4R Detector",
			Version:     "1.0.0",
			Environment: "development",
		},
		Provider: provider.Config{
			BaseURL:         "https://api.ethos.network",
			RequestTimeout:  30 * time.Second,
			RateLimit:       300,
			RateLimitWindow: 15 * time.Minute,
			RetryBackoff:    500 * time.Millisecond,
			PageSize:        200,
		},
		Engine: detector.DefaultConfig(),
		Analysis: AnalysisConfig{
			Budget:         60 * time.Second,
			MaxConcurrency: 4,
			MaxBatchSize:   25,
		},
		Cache: CacheConfig{
			ReportCapacity:  512,
			ReportTTL:       2 * time.Minute,
			NetworkCapacity: 64,
			NetworkTTL:      10 * time.Minute,
		},
		Server: ServerConfig{
			Host:         "localhost",
			Port:         8080,
			EnableCORS:   true,
			EnableAuth:   false,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 90 * time.Second,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Output:   "stdout",
			Filename: "r4r-detector.log",
		},
	}
}

// Load loads configuration from a YAML file, creating it with defaults
// when it does not exist yet.
func Load(filename string) (*Config, error) {
	config := Default()

	if _, err := os.Stat(filename); os.IsNotExist(err) {
		if err := config.Save(filename); err != nil {
			return nil, fmt.Errorf("failed to create default config file: %w", err)
		}
		return config, nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration values.
func (c *Config) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return err
	}

	if c.Provider.BaseURL == "" {
		return fmt.Errorf("provider base_url must be set")
	}

	if c.Analysis.Budget <= 0 {
		return fmt.Errorf("analysis budget must be positive")
	}
	if c.Analysis.MaxConcurrency < 1 {
		return fmt.Errorf("max_concurrency must be at least 1")
	}
	if c.Analysis.MaxBatchSize < 1 {
		return fmt.Errorf("max_batch_size must be at least 1")
	}

	if c.Cache.ReportCapacity < 1 || c.Cache.NetworkCapacity < 1 {
		return fmt.Errorf("cache capacities must be at least 1")
	}
	if c.Cache.ReportTTL <= 0 || c.Cache.NetworkTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be in (0, 65535]")
	}
	if c.Server.EnableAuth && c.Server.APIKey == "" {
		return fmt.Errorf("api_key must be set when auth is enabled")
	}

	validEnvs := map[string]bool{"development": true, "production": true}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("environment must be one of: development, production")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("log level must be one of: debug, info, warn, error")
	}
	validOutputs := map[string]bool{"stdout": true, "file": true, "both": true}
	if !validOutputs[c.Logging.Output] {
		return fmt.Errorf("log output must be one of: stdout, file, both")
	}
	if c.Logging.Output != "stdout" && c.Logging.Filename == "" {
		return fmt.Errorf("log filename must be set when logging to a file")
	}

	return nil
}

// UpdateEngineConfig swaps the engine thresholds after validating them.
func (c *Config) UpdateEngineConfig(engine detector.Config) error {
	if err := engine.Validate(); err != nil {
		return err
	}
	c.Engine = engine
	return nil
}

// IsProduction returns true when running in production.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// String returns a short description of the config, excluding secrets.
func (c *Config) String() string {
	return fmt.Sprintf("%s %s (%s, provider: %s, budget: %s)",
		c.App.Name, c.App.Version, c.App.Environment, c.Provider.BaseURL, c.Analysis.Budget)
}
