package cfg

import (
	"cmp"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Remote API
	APIURL         string `long:"api-url" env:"API_URL" description:"Newsletter API endpoint (required)" required:"true"`
	RequestTimeout int    `long:"request-timeout" env:"REQUEST_TIMEOUT" default:"30" description:"Remote request timeout in seconds (0 disables)"`
	UserAgent      string `long:"user-agent" env:"USER_AGENT" default:"Newsdeck/1.0" description:"User agent string for HTTP requests"`

	// Application configuration
	Port       string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl    string `long:"base-url" env:"BASE_URL" description:"Public base URL for the service (e.g., https://news.example.com)"`
	TuningFile string `long:"tuning-file" env:"TUNING_FILE" default:"./newsdeck.yml" description:"YAML file with cache, prefetch and loading settings"`

	// Application metadata
	Timezone string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug    bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	return LoadArgs(os.Args[1:])
}

// LoadArgs parses args and the environment. It returns nil, nil when help was requested.
func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		APIURL:         raw.APIURL,
		RequestTimeout: raw.RequestTimeout,
		UserAgent:      raw.UserAgent,
		Port:           raw.Port,
		BaseUrl:        raw.BaseUrl,
		TuningFile:     raw.TuningFile,
		Timezone:       raw.Timezone,
		Debug:          raw.Debug,
		Version:        GetVersion(),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func (c *Cfg) RequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

func validate(cfg *Cfg) error {
	u, err := url.Parse(cfg.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid API URL '%s': scheme and host are required", cfg.APIURL)
	}
	if cfg.RequestTimeout < 0 {
		return fmt.Errorf("request timeout must be non-negative")
	}
	return nil
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		loc, err := time.LoadLocation(timezone)
		if err != nil {
			return err
		}
		time.Local = loc
	}
	return nil
}
