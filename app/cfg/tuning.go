package cfg

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

func DefaultTuning() *Tuning {
	t := &Tuning{}
	t.applyDefaults()
	return t
}

// LoadTuning reads the tuning file. A missing file yields the defaults.
func LoadTuning(path string) (*Tuning, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		slog.Debug("Tuning file not found, using defaults", "path", path)
		return DefaultTuning(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return ParseTuning(data)
}

func ParseTuning(data []byte) (*Tuning, error) {
	var t Tuning
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := t.validate(); err != nil {
		return nil, fmt.Errorf("invalid tuning: %w", err)
	}
	t.applyDefaults()

	return &t, nil
}

func (t *Tuning) applyDefaults() {
	if t.Cache.MaxSize == 0 {
		t.Cache.MaxSize = 100
	}
	if t.Cache.MaxAge == 0 {
		t.Cache.MaxAge = 300
	}
	if t.Filter.CacheSize == 0 {
		t.Filter.CacheSize = 20
	}
	if t.Filter.DebounceMs == 0 {
		t.Filter.DebounceMs = 150
	}
	if t.Prefetch.Images.MaxConcurrent == 0 {
		t.Prefetch.Images.MaxConcurrent = 3
	}
	if t.Prefetch.Items.DelayMs == 0 {
		t.Prefetch.Items.DelayMs = 200
	}
	if t.Prefetch.Items.ItemLimit == 0 {
		t.Prefetch.Items.ItemLimit = 20
	}
	if t.Loading.PacingMs == 0 {
		t.Loading.PacingMs = 100
	}
	if t.Loading.FeaturedLimit == 0 {
		t.Loading.FeaturedLimit = 6
	}
	if t.Loading.RecentLimit == 0 {
		t.Loading.RecentLimit = 12
	}
	if t.Viewport.Margin == 0 {
		t.Viewport.Margin = 4
	}
}

func (t *Tuning) validate() error {
	nonNegativeFields := map[string]int{
		"cache max size":       t.Cache.MaxSize,
		"cache max age":        t.Cache.MaxAge,
		"filter cache size":    t.Filter.CacheSize,
		"filter debounce":      t.Filter.DebounceMs,
		"image max concurrent": t.Prefetch.Images.MaxConcurrent,
		"item delay":           t.Prefetch.Items.DelayMs,
		"item limit":           t.Prefetch.Items.ItemLimit,
		"loading pacing":       t.Loading.PacingMs,
		"featured limit":       t.Loading.FeaturedLimit,
		"recent limit":         t.Loading.RecentLimit,
		"viewport margin":      t.Viewport.Margin,
	}

	for fieldName, fieldValue := range nonNegativeFields {
		if fieldValue < 0 {
			return fmt.Errorf("%s must be non-negative", fieldName)
		}
	}
	return nil
}

func (t *Tuning) CacheMaxAge() time.Duration {
	return time.Duration(t.Cache.MaxAge) * time.Second
}

func (t *Tuning) FilterDebounce() time.Duration {
	return time.Duration(t.Filter.DebounceMs) * time.Millisecond
}

func (t *Tuning) ItemDelay() time.Duration {
	return time.Duration(t.Prefetch.Items.DelayMs) * time.Millisecond
}

func (t *Tuning) LoadingPacing() time.Duration {
	return time.Duration(t.Loading.PacingMs) * time.Millisecond
}
