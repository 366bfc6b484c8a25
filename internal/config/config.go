package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/egd-cxr-toolkit/internal/domain"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. EGD_CXR_PATH_RAW.
const EnvPrefix = "EGD_CXR"

// Manager loads and validates the toolkit configuration using Viper
type Manager struct {
	v          *viper.Viper
	configFile string
	config     *domain.Config
}

// NewManager creates a new configuration manager. configFile may be empty, in which
// case config.yaml is searched in the usual locations.
func NewManager(configFile string) (*Manager, error) {
	m := &Manager{configFile: configFile}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	v := viper.New()

	if m.configFile != "" {
		v.SetConfigFile(m.configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/egd-cxr/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional unless one was named explicitly
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || m.configFile != "" {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.v = v
	m.config = config
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Paths
	v.SetDefault("path.raw", "./data/egd-cxr/1.0.0")
	v.SetDefault("path.sampling_data", "./data/sampling")
	v.SetDefault("path.dicom_dir", "./data/dicom_raw")
	v.SetDefault("path.plots_dir", "./data/plots")
	v.SetDefault("path.catalog_db", "./data/sampling_runs.db")

	// Sampling defaults
	v.SetDefault("sampling.size", 50)
	v.SetDefault("sampling.seed", 42)
	v.SetDefault("sampling.primary_quota", 8)
	v.SetDefault("sampling.complex_quota", 8)
	v.SetDefault("sampling.secondary_quota", 3)
	v.SetDefault("sampling.min_complexity", 2)
	v.SetDefault("sampling.probe_rows", 1000)
	v.SetDefault("sampling.chunk_size", 10000)
	v.SetDefault("sampling.primary_conditions", conditionNames(domain.DefaultPrimaryConditions))
	v.SetDefault("sampling.secondary_conditions", conditionNames(domain.DefaultSecondaryConditions))

	// Download defaults
	v.SetDefault("download.base_url", "https://physionet.org/files/mimic-cxr/2.0.0/")
	v.SetDefault("download.username", "")
	v.SetDefault("download.password", "")
	v.SetDefault("download.timeout", "60s")
	v.SetDefault("download.delay", "2s")
	v.SetDefault("download.max_attempts", 3)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")

	// Cache defaults
	v.SetDefault("cache.fixation_cases", 64)
}

func conditionNames(conds []domain.Condition) []string {
	names := make([]string, len(conds))
	for i, c := range conds {
		names[i] = string(c)
	}
	return names
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// ConfigFileUsed returns the path of the loaded config file, if any
func (m *Manager) ConfigFileUsed() string {
	return m.v.ConfigFileUsed()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Path.Raw == "" {
		return invalid("path.raw is required")
	}
	if config.Path.SamplingData == "" {
		return invalid("path.sampling_data is required")
	}

	s := config.Sampling
	if s.Size <= 0 {
		return invalid(fmt.Sprintf("sampling.size must be positive: %d", s.Size))
	}
	if s.PrimaryQuota < 0 || s.ComplexQuota < 0 || s.SecondaryQuota < 0 {
		return invalid("sampling quotas must not be negative")
	}
	if s.ChunkSize <= 0 {
		return invalid(fmt.Sprintf("sampling.chunk_size must be positive: %d", s.ChunkSize))
	}
	if len(s.PrimaryConditions) == 0 {
		return invalid("sampling.primary_conditions must not be empty")
	}

	if config.Download.MaxAttempts <= 0 {
		return invalid("download.max_attempts must be positive")
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return invalid(fmt.Sprintf("invalid log level: %s", config.Logging.Level))
	}

	return nil
}

func invalid(msg string) error {
	return domain.NewDatasetError(domain.ErrInvalidConfig, msg, "", nil)
}

// EnsureOutputDirs creates the output directories if they don't exist.
func (m *Manager) EnsureOutputDirs() error {
	p := m.config.Path
	for _, dir := range []string{p.SamplingData, p.PlotsDir, p.DicomDir, filepath.Dir(p.CatalogDB)} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}
