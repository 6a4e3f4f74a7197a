package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v2"
)

// Default constants
const (
	// DefaultDarkFrames is the number of dark scenes captured per comparison.
	DefaultDarkFrames = 3

	// DefaultLightFrames is the number of light scenes captured per comparison.
	DefaultLightFrames = 3

	// DefaultRandomFrames is the number of random scenes captured per comparison.
	DefaultRandomFrames = 3

	// DefaultFramesCount is the number of screenshots taken from a single source.
	DefaultFramesCount = 3

	// DefaultExpirationDays is the slow.pics expiration in days (0 disables expiration).
	DefaultExpirationDays = 1

	// EnvPrefix prefixes every environment variable read by ApplyEnv.
	EnvPrefix = "FRAMECOMP_"

	// TempDirName is the directory created under the OS temp dir when TempDir is unset.
	TempDirName = "framecomp"
)

// PublishConfig holds upload settings.
type PublishConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Provider      Provider `yaml:"provider"`
	Proxy         string   `yaml:"proxy"`
	Public        bool     `yaml:"public"`
	Limited       bool     `yaml:"limited"`
	Expiration    *int     `yaml:"expiration"`
	Name          string   `yaml:"name"`
	Description   string   `yaml:"description"`
	CatboxToken   string   `yaml:"catbox_token"`
	ImgurClientID string   `yaml:"imgur_client_id"`
}

// Config holds all configuration for one run.
// It is built once, validated, and then only read.
type Config struct {
	Sources []Source `yaml:"files"`

	// Comparison frame counts
	DarkFrames   int `yaml:"dark_frames"`
	LightFrames  int `yaml:"light_frames"`
	RandomFrames int `yaml:"random_frames"`

	// Screenshot frame count
	FramesCount int `yaml:"frames_count"`

	CustomFrames []CustomFrame    `yaml:"custom_frames"`
	PictureType  PictureTypeFilter `yaml:"frames_type"`

	// Export settings
	Upscale    bool `yaml:"upscaling"`
	Resolution int  `yaml:"resolution"` // 0 means auto
	Overlay    bool `yaml:"frame_infos"`

	Publish PublishConfig `yaml:"upload"`

	// Local retention
	KeepImages     bool   `yaml:"keep_images"`
	KeepImagesPath string `yaml:"keep_images_path"`
	KeepIndex      bool   `yaml:"keep_index"`
	TempDir        string `yaml:"temp_dir"`

	// Optional luma timeline chart (PNG)
	LumaChart string `yaml:"luma_chart"`

	// Logging and output
	LogDir  string `yaml:"log_dir"`
	Verbose bool   `yaml:"verbose"`
	NoLog   bool   `yaml:"no_log"`
	JSON    bool   `yaml:"json"`
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	expiration := DefaultExpirationDays
	return &Config{
		DarkFrames:   DefaultDarkFrames,
		LightFrames:  DefaultLightFrames,
		RandomFrames: DefaultRandomFrames,
		FramesCount:  DefaultFramesCount,
		PictureType:  PictureTypeFilter{Mode: FilterAny},
		Upscale:      true,
		Overlay:      true,
		Publish: PublishConfig{
			Enabled:    true,
			Provider:   ProviderSlowpics,
			Expiration: &expiration,
		},
	}
}

// LoadFile reads a YAML configuration file on top of the defaults.
// Unknown keys are rejected.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := NewConfig()
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// envOverrides lists the settings that may come from the environment.
type envOverrides struct {
	Provider      string `env:"UPLOAD_PROVIDER"`
	Proxy         string `env:"UPLOAD_PROXY"`
	CatboxToken   string `env:"CATBOX_TOKEN"`
	ImgurClientID string `env:"IMGUR_CLIENT_ID"`
	TempDir       string `env:"TEMP_DIR"`
	LogDir        string `env:"LOG_DIR"`
}

// ApplyEnv overrides settings from FRAMECOMP_* environment variables.
func (c *Config) ApplyEnv() error {
	return c.ApplyEnvFrom(nil)
}

// ApplyEnvFrom is ApplyEnv with an explicit environment; nil reads the process environment.
func (c *Config) ApplyEnvFrom(environ map[string]string) error {
	var o envOverrides
	opts := env.Options{Prefix: EnvPrefix, Environment: environ}
	if err := env.ParseWithOptions(&o, opts); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}

	if o.Provider != "" {
		p, err := ParseProvider(o.Provider)
		if err != nil {
			return err
		}
		c.Publish.Provider = p
	}
	if o.Proxy != "" {
		c.Publish.Proxy = o.Proxy
	}
	if o.CatboxToken != "" {
		c.Publish.CatboxToken = o.CatboxToken
	}
	if o.ImgurClientID != "" {
		c.Publish.ImgurClientID = o.ImgurClientID
	}
	if o.TempDir != "" {
		c.TempDir = o.TempDir
	}
	if o.LogDir != "" {
		c.LogDir = o.LogDir
	}
	return nil
}

// ValidateCompare checks the configuration of a multi-source comparison.
func (c *Config) ValidateCompare() error {
	if err := c.validateRetention(); err != nil {
		return err
	}

	if c.DarkFrames < 1 && c.LightFrames < 1 && c.RandomFrames < 1 && len(c.CustomFrames) < 1 {
		return fmt.Errorf("%w: dark, light and random counts are 0 and no custom frame is set", ErrNothingToCapture)
	}

	if len(c.Sources) < 2 {
		return fmt.Errorf("%w: got %d", ErrTooFewSources, len(c.Sources))
	}

	if err := c.validateSources(); err != nil {
		return err
	}

	if c.Publish.Enabled && c.Publish.Provider != ProviderSlowpics {
		return fmt.Errorf("%w: comparisons can only be published to slowpics, got '%s'", ErrInvalidProvider, c.Publish.Provider)
	}

	return nil
}

// ValidateScreenshots checks the configuration of a single-source screenshot run.
func (c *Config) ValidateScreenshots() error {
	if !c.KeepImages && !c.Publish.Enabled {
		return ErrNoDestination
	}

	if c.Publish.Enabled {
		if _, err := ParseProvider(string(c.Publish.Provider)); err != nil {
			return err
		}
	}

	if err := c.validateRetention(); err != nil {
		return err
	}

	if c.FramesCount < 1 && len(c.CustomFrames) < 1 {
		return fmt.Errorf("%w: frames count is 0 and no custom frame is set", ErrNothingToCapture)
	}

	if len(c.Sources) != 1 {
		return fmt.Errorf("%w: got %d", ErrSourceCount, len(c.Sources))
	}

	return c.validateSources()
}

func (c *Config) validateRetention() error {
	if c.KeepImages && c.KeepImagesPath == "" {
		return ErrKeepPathMissing
	}
	if c.Resolution < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidResolution, c.Resolution)
	}
	return nil
}

func (c *Config) validateSources() error {
	for i, src := range c.Sources {
		if src.Path == "" {
			return fmt.Errorf("source %d has no file", i)
		}
		if src.FPS != nil && !src.FPS.Valid() {
			return fmt.Errorf("%w: source %d: %s", ErrInvalidFrameRate, i, src.FPS)
		}
	}

	for _, cf := range c.CustomFrames {
		if cf.SourceIndex < 0 || cf.SourceIndex >= len(c.Sources) {
			return fmt.Errorf("%w: file index %d out of range (%d sources)", ErrInvalidCustomFrame, cf.SourceIndex, len(c.Sources))
		}
		if cf.FrameIndex < 0 {
			return fmt.Errorf("%w: frame index %d is negative", ErrInvalidCustomFrame, cf.FrameIndex)
		}
	}
	return nil
}

// GetTempDir returns the temp directory, falling back to <os temp>/framecomp.
func (c *Config) GetTempDir() string {
	if c.TempDir != "" {
		return c.TempDir
	}
	return filepath.Join(os.TempDir(), TempDirName)
}

// OutputDir returns where exported images are written.
func (c *Config) OutputDir() string {
	if c.KeepImages && c.KeepImagesPath != "" {
		return c.KeepImagesPath
	}
	return c.GetTempDir()
}

// ExpirationDays returns the slow.pics expiration, or nil when unset.
func (c *Config) ExpirationDays() *int {
	return c.Publish.Expiration
}
