package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/kmeans.visualiser/internal/kmeans"
)

// ServerConfig holds the optional settings read from the -config file.
// Every field is a pointer so that omitted keys fall back to the defaults
// returned by the Get* methods.
type ServerConfig struct {
	// Dataset and session params
	DatasetSize *int    `json:"dataset_size,omitempty"`
	MaxSteps    *int    `json:"max_steps,omitempty"`
	Seed        *uint64 `json:"seed,omitempty"`

	// Auto-initialisation params used when /step or /run arrives first
	DefaultMethod *string `json:"default_method,omitempty"`
	DefaultK      *int    `json:"default_k,omitempty"`

	// Presentation and debugging
	HistoryEnabled *bool   `json:"history_enabled,omitempty"`
	ChartTheme     *string `json:"chart_theme,omitempty"`
}

// Helper functions to create pointers
func ptrInt(v int) *int          { return &v }
func ptrBool(v bool) *bool       { return &v }
func ptrString(v string) *string { return &v }

// EmptyServerConfig returns a ServerConfig with all fields set to nil.
func EmptyServerConfig() *ServerConfig {
	return &ServerConfig{}
}

// DefaultServerConfig returns a ServerConfig with every field populated
// with its default value.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		DatasetSize:    ptrInt(kmeans.DefaultDatasetSize),
		MaxSteps:       ptrInt(kmeans.DefaultMaxSteps),
		DefaultMethod:  ptrString(string(kmeans.MethodRandom)),
		DefaultK:       ptrInt(3),
		HistoryEnabled: ptrBool(true),
		ChartTheme:     ptrString("white"),
	}
}

// LoadServerConfig loads a ServerConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted
// from the file keep their defaults, so partial configs are safe.
func LoadServerConfig(path string) (*ServerConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyServerConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *ServerConfig) Validate() error {
	if c.DatasetSize != nil && *c.DatasetSize < 1 {
		return fmt.Errorf("dataset_size must be at least 1, got %d", *c.DatasetSize)
	}

	if c.MaxSteps != nil && *c.MaxSteps < 1 {
		return fmt.Errorf("max_steps must be at least 1, got %d", *c.MaxSteps)
	}

	if c.DefaultMethod != nil {
		m, err := kmeans.ParseMethod(*c.DefaultMethod)
		if err != nil {
			return fmt.Errorf("default_method: %w", err)
		}
		if m == kmeans.MethodManual {
			return fmt.Errorf("default_method cannot be %q", m)
		}
	}

	if c.DefaultK != nil {
		if *c.DefaultK < 1 || *c.DefaultK > c.GetDatasetSize() {
			return fmt.Errorf("default_k must be between 1 and %d, got %d", c.GetDatasetSize(), *c.DefaultK)
		}
	}

	if c.ChartTheme != nil {
		switch *c.ChartTheme {
		case "white", "dark":
		default:
			return fmt.Errorf("chart_theme must be \"white\" or \"dark\", got %q", *c.ChartTheme)
		}
	}

	return nil
}

// GetDatasetSize returns the dataset_size value or the default.
func (c *ServerConfig) GetDatasetSize() int {
	if c.DatasetSize == nil {
		return kmeans.DefaultDatasetSize
	}
	return *c.DatasetSize
}

// GetMaxSteps returns the max_steps value or the default.
func (c *ServerConfig) GetMaxSteps() int {
	if c.MaxSteps == nil {
		return kmeans.DefaultMaxSteps
	}
	return *c.MaxSteps
}

// GetSeed returns the seed value or 0 (time based).
func (c *ServerConfig) GetSeed() uint64 {
	if c.Seed == nil {
		return 0
	}
	return *c.Seed
}

// GetDefaultMethod returns the default_method value or the default.
func (c *ServerConfig) GetDefaultMethod() kmeans.Method {
	if c.DefaultMethod == nil {
		return kmeans.MethodRandom
	}
	return kmeans.Method(*c.DefaultMethod)
}

// GetDefaultK returns the default_k value or the default.
func (c *ServerConfig) GetDefaultK() int {
	if c.DefaultK == nil {
		return 3
	}
	return *c.DefaultK
}

// GetHistoryEnabled returns the history_enabled value or the default.
func (c *ServerConfig) GetHistoryEnabled() bool {
	if c.HistoryEnabled == nil {
		return true
	}
	return *c.HistoryEnabled
}

// GetChartTheme returns the chart_theme value or the default.
func (c *ServerConfig) GetChartTheme() string {
	if c.ChartTheme == nil {
		return "white"
	}
	return *c.ChartTheme
}

// SessionConfig converts the file settings into core session settings.
func (c *ServerConfig) SessionConfig() kmeans.SessionConfig {
	return kmeans.SessionConfig{
		DatasetSize: c.GetDatasetSize(),
		MaxSteps:    c.GetMaxSteps(),
		Seed:        c.GetSeed(),
	}
}
