package cfg

type Cfg struct {
	// Remote API
	APIURL         string
	RequestTimeout int
	UserAgent      string

	// Application configuration
	Port       string
	BaseUrl    string
	TuningFile string

	// Application metadata
	Timezone string
	Debug    bool
	Version  string
}

// Tuning holds the knobs of the data layer. Durations are given in seconds or
// milliseconds as the field names say.
type Tuning struct {
	Cache    CacheTuning    `yaml:"cache"`
	Filter   FilterTuning   `yaml:"filter"`
	Prefetch PrefetchTuning `yaml:"prefetch"`
	Loading  LoadingTuning  `yaml:"loading"`
	Viewport ViewportTuning `yaml:"viewport"`
}

type CacheTuning struct {
	MaxSize int `yaml:"max_size"`
	MaxAge  int `yaml:"max_age"` // seconds
}

type FilterTuning struct {
	CacheSize  int `yaml:"cache_size"`
	DebounceMs int `yaml:"debounce_ms"`
}

type PrefetchTuning struct {
	Images ImageTuning `yaml:"images"`
	Items  ItemTuning  `yaml:"items"`
}

type ImageTuning struct {
	MaxConcurrent int `yaml:"max_concurrent"`
}

type ItemTuning struct {
	DelayMs   int `yaml:"delay_ms"`
	ItemLimit int `yaml:"item_limit"`
}

type LoadingTuning struct {
	PacingMs      int `yaml:"pacing_ms"`
	FeaturedLimit int `yaml:"featured_limit"`
	RecentLimit   int `yaml:"recent_limit"`
}

type ViewportTuning struct {
	Margin int `yaml:"margin"` // rows
}
