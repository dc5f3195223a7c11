package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigtoml"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/yehorDorosh/mne-travel/pkg/steps"
)

const (
	// FileName is the name of the optional config file in the project root
	FileName = "assets.toml"
	// DefaultScript is the pipeline script looked up when none is configured
	DefaultScript = "assets.star"
)

// Config describes all configuration options
type Config struct {
	Env    string `toml:"env" default:"" usage:"Build mode: development or production (falls back to NODE_ENV)"`
	Script string `toml:"script" default:"assets.star" usage:"Pipeline script, relative to the project root"`
	Log struct {
		Level string `toml:"level" default:"info"`
	} `toml:"log"`
	Styles struct {
		RootValue float64  `toml:"root_value" default:"16" usage:"Root font size used for px to rem conversion"`
		Precision int      `toml:"precision" default:"5" usage:"Decimal places kept by the px to rem conversion"`
		PropList  []string `toml:"prop_list" default:"font,font-size,line-height,letter-spacing" usage:"Properties converted from px to rem"`
		Targets   []string `toml:"targets" default:"chrome109,edge120,firefox115,safari15.6,ios15.6" usage:"Browser targets for syntax lowering and prefixes"`
	} `toml:"styles"`
	Images struct {
		Quality  int `toml:"quality" default:"80" usage:"JPEG quality used in production"`
		MaxWidth int `toml:"max_width" default:"0" usage:"Downscale images wider than this (0 disables)"`
		Workers  int `toml:"workers" default:"0" usage:"Parallel image workers (0 = number of CPUs)"`
	} `toml:"images"`
	Watch struct {
		Lull time.Duration `toml:"lull" default:"300ms" usage:"Quiet period before a change triggers a rebuild"`
	} `toml:"watch"`
}

var logLevels = map[string]zerolog.Level{
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
	"fatal":   zerolog.FatalLevel,
}

// Loader initializes an empty config object and returns a new Loader for this object.
// Values are read from struct defaults, <projectRoot>/assets.toml and ASSETS_* variables.
func Loader(projectRoot string) (*Config, *aconfig.Loader) {
	cfg := Config{}
	return &cfg, aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix:        "ASSETS",
		SkipFlags:        true,
		AllowUnknownEnvs: true,
		Files:            []string{filepath.Join(projectRoot, FileName)},
		FileDecoders: map[string]aconfig.FileDecoder{
			".toml": aconfigtoml.New(),
		},
	})
}

// Load reads and validates the configuration for the given project
func Load(projectRoot string) (*Config, error) {
	cfg, loader := Loader(projectRoot)
	if err := loader.Load(); err != nil {
		return nil, eris.Wrap(err, "failed to load config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate verifies that all config fields have valid values
func (cfg *Config) Validate() error {
	switch cfg.Env {
	case "", "development", "production":
	default:
		return eris.Errorf(`Invalid value for env: %s (must be development or production)`, cfg.Env)
	}

	_, ok := logLevels[cfg.Log.Level]
	if !ok {
		return eris.Errorf(`Invalid value for log.level: %s`, cfg.Log.Level)
	}

	if cfg.Styles.RootValue <= 0 {
		return eris.Errorf(`Invalid value for styles.root_value: %v`, cfg.Styles.RootValue)
	}

	if cfg.Styles.Precision < 0 {
		return eris.Errorf(`Invalid value for styles.precision: %d`, cfg.Styles.Precision)
	}

	if _, err := steps.ParseTargets(cfg.Styles.Targets); err != nil {
		return eris.Wrap(err, `Invalid value for styles.targets`)
	}

	if cfg.Images.Quality < 1 || cfg.Images.Quality > 100 {
		return eris.Errorf(`Invalid value for images.quality: %d (must be between 1 and 100)`, cfg.Images.Quality)
	}

	if cfg.Images.MaxWidth < 0 || cfg.Images.Workers < 0 {
		return eris.New(`images.max_width and images.workers must not be negative`)
	}

	return nil
}

// mode returns the configured env. NODE_ENV is only a fallback; any value other than
// development counts as production there.
func (cfg *Config) mode() string {
	if cfg.Env != "" {
		return cfg.Env
	}

	switch os.Getenv("NODE_ENV") {
	case "":
		return ""
	case "development":
		return "development"
	}
	return "production"
}

// Development reports whether debug aids (source maps, unminified output) should be produced.
// An unset mode counts as development.
func (cfg *Config) Development() bool {
	mode := cfg.mode()
	return mode == "" || mode == "development"
}

// LogLevel converts the .Log.Level field to a zerolog.Level
func (cfg *Config) LogLevel() zerolog.Level {
	return logLevels[cfg.Log.Level]
}
