package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type Service struct {
	URL     string        `yaml:"url" mapstructure:"url"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}
type Services struct {
	Analysis Service `yaml:"analysis" mapstructure:"analysis"`
}
type Capture struct {
	Interval     time.Duration `yaml:"interval" mapstructure:"interval"`
	DiscardStale bool          `yaml:"discard_stale" mapstructure:"discard_stale"`
	JPEGQuality  int           `yaml:"jpeg_quality" mapstructure:"jpeg_quality"`
}
type Recording struct {
	Filename string `yaml:"filename" mapstructure:"filename"`
}
type Devices struct {
	Video     string        `yaml:"video" mapstructure:"video"`
	Audio     string        `yaml:"audio" mapstructure:"audio"`
	ChunkSize int           `yaml:"chunk_size" mapstructure:"chunk_size"`
	Timeslice time.Duration `yaml:"timeslice" mapstructure:"timeslice"`
}
type Root struct {
	App struct {
		Name    string `yaml:"name" mapstructure:"name"`
		Version string `yaml:"version" mapstructure:"version"`
		LogLvl  string `yaml:"log_level" mapstructure:"log_level"`
	} `yaml:"app" mapstructure:"app"`
	Services  Services  `yaml:"services" mapstructure:"services"`
	Capture   Capture   `yaml:"capture" mapstructure:"capture"`
	Recording Recording `yaml:"recording" mapstructure:"recording"`
	Devices   Devices   `yaml:"devices" mapstructure:"devices"`
}

// flag name -> config key
var flagKeys = map[string]string{
	"url":       "services.analysis.url",
	"video":     "devices.video",
	"audio":     "devices.audio",
	"interval":  "capture.interval",
	"log-level": "app.log_level",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "edmo-capture")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("services.analysis.url", "http://127.0.0.1:5000")
	v.SetDefault("services.analysis.timeout", "60s")
	v.SetDefault("capture.interval", "2s")
	v.SetDefault("capture.discard_stale", false)
	v.SetDefault("capture.jpeg_quality", 92)
	v.SetDefault("recording.filename", "recording.wav")
	v.SetDefault("devices.video", "")
	v.SetDefault("devices.audio", "")
	v.SetDefault("devices.chunk_size", 4096)
	v.SetDefault("devices.timeslice", "250ms")
}

// Load reads the configuration. With an empty file it looks for
// config/<CONFIG_ENV>/config.yaml, src/shared/config.yaml and ./config.yaml
// and falls back to defaults when none exists. EDMO_* environment
// variables and the given flags override file values.
func Load(file string, flags *pflag.FlagSet) (*Root, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("EDMO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("config: bind %s: %w", name, err)
				}
			}
		}
	}

	if file != "" {
		v.SetConfigFile(file)
	} else {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Join("config", env))
		v.AddConfigPath(filepath.Join("src", "shared"))
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &nf) {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	var cfg Root
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config decode: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Root) validate() error {
	u, err := url.Parse(c.Services.Analysis.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: services.analysis.url %q is not an absolute URL", c.Services.Analysis.URL)
	}
	if c.Capture.Interval <= 0 {
		return fmt.Errorf("config: capture.interval must be positive, got %s", c.Capture.Interval)
	}
	if c.Capture.JPEGQuality < 1 || c.Capture.JPEGQuality > 100 {
		return fmt.Errorf("config: capture.jpeg_quality must be within 1..100, got %d", c.Capture.JPEGQuality)
	}
	return nil
}

// Write renders c as YAML.
func Write(w io.Writer, c *Root) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}
