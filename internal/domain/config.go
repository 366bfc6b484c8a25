package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Path     PathConfig     `mapstructure:"path"`
	Sampling SamplingConfig `mapstructure:"sampling"`
	Download DownloadConfig `mapstructure:"download"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Cache    CacheConfig    `mapstructure:"cache"`
}

// PathConfig locates the raw dataset and the derived outputs
type PathConfig struct {
	Raw          string `mapstructure:"raw"`
	SamplingData string `mapstructure:"sampling_data"`
	DicomDir     string `mapstructure:"dicom_dir"`
	PlotsDir     string `mapstructure:"plots_dir"`
	CatalogDB    string `mapstructure:"catalog_db"`
}

// SamplingConfig drives the stratified sampler
type SamplingConfig struct {
	Size                int      `mapstructure:"size"`
	Seed                int64    `mapstructure:"seed"`
	PrimaryQuota        int      `mapstructure:"primary_quota"`
	ComplexQuota        int      `mapstructure:"complex_quota"`
	SecondaryQuota      int      `mapstructure:"secondary_quota"`
	MinComplexity       int      `mapstructure:"min_complexity"`
	ProbeRows           int      `mapstructure:"probe_rows"` // <= 0 scans the whole table
	ChunkSize           int      `mapstructure:"chunk_size"`
	PrimaryConditions   []string `mapstructure:"primary_conditions"`
	SecondaryConditions []string `mapstructure:"secondary_conditions"`
}

// DownloadConfig configures the PhysioNet DICOM downloader
type DownloadConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Delay       time.Duration `mapstructure:"delay"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// CacheConfig sizes the in-memory caches
type CacheConfig struct {
	FixationCases int `mapstructure:"fixation_cases"`
}

func toConditions(names []string) []Condition {
	out := make([]Condition, 0, len(names))
	for _, n := range names {
		out = append(out, Condition(n))
	}
	return out
}

// Primary returns the configured primary conditions.
func (s SamplingConfig) Primary() []Condition {
	return toConditions(s.PrimaryConditions)
}

// Secondary returns the configured secondary conditions.
func (s SamplingConfig) Secondary() []Condition {
	return toConditions(s.SecondaryConditions)
}
