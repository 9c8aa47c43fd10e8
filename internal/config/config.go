package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	// DefaultQuality is the lossy encoder quality used when nothing else is set.
	DefaultQuality = 85
	// DefaultWorkers processes files sequentially.
	DefaultWorkers = 1
	// DefaultConfigName is looked up (with a yaml/yml extension) when no
	// config file is named explicitly.
	DefaultConfigName = ".img-optimize"
	// EnvPrefix prefixes environment overrides, e.g. IMG_OPTIMIZE_QUALITY.
	EnvPrefix = "IMG_OPTIMIZE"
)

// ErrConfig marks configuration errors that abort a run before processing.
var ErrConfig = errors.New("configuration error")

// OptimizationOptions is the effective option set of a run.
type OptimizationOptions struct {
	Quality int
	// MaxWidth and MaxHeight are 0 when unset.
	MaxWidth  int
	MaxHeight int
	Workers   int
	Skip      []string
}

// FileConfig mirrors the recognised keys of the config file. Pointer fields
// are nil when the key is absent.
type FileConfig struct {
	Quality   *int     `mapstructure:"quality"`
	MaxWidth  *int     `mapstructure:"max_width"`
	MaxHeight *int     `mapstructure:"max_height"`
	Workers   *int     `mapstructure:"workers"`
	Skip      []string `mapstructure:"skip"`
	Recursive *bool    `mapstructure:"recursive"`
	LogFile   string   `mapstructure:"log_file"`
	LogLevel  string   `mapstructure:"log_level"`
	S3        S3Config `mapstructure:"s3"`

	// Path is the file the values were read from; empty when none was found.
	Path string `mapstructure:"-"`
}

// S3Config contains the optional S3 mirror settings.
type S3Config struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
	Region string `mapstructure:"region"`
}

var fileKeys = []string{
	"quality", "max_width", "max_height", "workers", "skip", "recursive",
	"log_file", "log_level", "s3.bucket", "s3.prefix", "s3.region",
}

// Defaults returns the built-in options.
func Defaults() OptimizationOptions {
	return OptimizationOptions{
		Quality: DefaultQuality,
		Workers: DefaultWorkers,
	}
}

// LoadFile reads the YAML config at configPath. With an empty configPath it
// looks for .img-optimize.yaml in the current directory and then $HOME; not
// finding one there is not an error. Environment variables prefixed with
// IMG_OPTIMIZE_ override file values. Every failure wraps ErrConfig.
func LoadFile(configPath string) (*FileConfig, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range fileKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("%w: bind env %s: %v", ErrConfig, key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: error reading config file: %v", ErrConfig, err)
		}
		// No config file found on the search path; defaults apply.
	}

	cfg := &FileConfig{Path: v.ConfigFileUsed()}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: error unmarshaling config: %v", ErrConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	return cfg, nil
}

// Validate checks the values present in the file.
func (c *FileConfig) Validate() error {
	if c.Quality != nil {
		if err := validateQuality(*c.Quality); err != nil {
			return err
		}
	}
	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", *c.Workers)
	}
	if c.MaxWidth != nil && *c.MaxWidth < 1 {
		return fmt.Errorf("max_width must be positive, got %d", *c.MaxWidth)
	}
	if c.MaxHeight != nil && *c.MaxHeight < 1 {
		return fmt.Errorf("max_height must be positive, got %d", *c.MaxHeight)
	}
	if c.LogLevel != "" {
		validLogLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}
		if !validLogLevels[strings.ToLower(c.LogLevel)] {
			return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.LogLevel)
		}
	}
	return nil
}

// Validate checks the invariants of an effective option set.
func (o OptimizationOptions) Validate() error {
	if err := validateQuality(o.Quality); err != nil {
		return err
	}
	if o.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", o.Workers)
	}
	if o.MaxWidth < 0 || o.MaxHeight < 0 {
		return fmt.Errorf("max dimensions must be positive, got %dx%d", o.MaxWidth, o.MaxHeight)
	}
	return nil
}

func validateQuality(q int) error {
	if q < 1 || q > 100 {
		return fmt.Errorf("quality must be between 1 and 100, got %d", q)
	}
	return nil
}
