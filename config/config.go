package config

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.trai.ch/zerr"
)

// Threshold bounds accepted from files, flags and the persisted store.
const (
	MinThreshold     = 0.60
	MaxThreshold     = 1.00
	DefaultThreshold = 0.80
)

// Config holds runtime configuration for matching, scheduling and key control.
// It is loaded from a JSON or YAML file and passed explicitly to the components
// that need it; components copy what they use at construction.
type Config struct {
	Debug       bool   `json:"debug"`
	LogFormat   string `json:"log_format"`
	LogLevel    string `json:"log_level"`
	StorePath   string `json:"store_path"`
	TemplateDir string `json:"template_dir"`

	// Known screen geometry used for the scale guess. Zero means "use the frame".
	ScreenWidth  int `json:"screen_width"`
	ScreenHeight int `json:"screen_height"`

	// Detection parameters
	Threshold          float64   `json:"threshold"`
	Scales             []float64 `json:"scales"`
	GoodEnoughScore    float64   `json:"good_enough_score"`
	MinTemplatePx      int       `json:"min_template_px"`
	Stride             int       `json:"stride"`
	Refine             bool      `json:"refine"`
	DedupRadiusPx      int       `json:"dedup_radius_px"`
	MaxMatchesPerScale int       `json:"max_matches_per_scale"`
	CaptureFPS         float64   `json:"capture_fps"`

	// Scheduling
	StepIntervalMs      int   `json:"step_interval_ms"`
	CycleDelayMs        int   `json:"cycle_delay_ms"`
	PhaseTimeoutMs      int64 `json:"phase_timeout_ms"`
	StartupRewardClaims int   `json:"startup_reward_claims"`
	JitterPx            int   `json:"jitter_px"`

	Reward RewardConfig `json:"reward"`
	Keys   KeyConfig    `json:"keys"`
	Groups []GroupSpec  `json:"groups"`
}

// RewardConfig configures the reward gate and the focus window it installs.
type RewardConfig struct {
	Enabled         bool     `json:"enabled"`
	PrimaryTemplate string   `json:"primary_template"`
	ProceedTemplate string   `json:"proceed_template"`
	PickSequence    []int    `json:"pick_sequence"`
	FocusSequence   []string `json:"focus_sequence"`
	FocusTTLMs      int      `json:"focus_ttl_ms"`
	SettleMs        int      `json:"settle_ms"`
	AfterProceedMs  int      `json:"after_proceed_ms"`
	RetryMs         int      `json:"retry_ms"`
	PostGroupClaims int      `json:"post_group_claims"`
}

// KeyConfig configures the key-event trigger and its resilience layer.
type KeyConfig struct {
	Enabled          bool   `json:"enabled"`
	TriggerKey       string `json:"trigger_key"`
	Stdin            bool   `json:"stdin"`
	SafeMode         bool   `json:"safe_mode"`
	DebounceMs       int    `json:"debounce_ms"`
	HealthIntervalMs int    `json:"health_interval_ms"`
	IdleMs           int    `json:"idle_ms"`
	CaptureAttempts  int    `json:"capture_attempts"`
	CaptureBackoffMs int    `json:"capture_backoff_ms"`
}

// DefaultScales is the resize ladder tried when a template's on-screen size is unknown.
var DefaultScales = []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.85, 0.9, 1.0, 1.1, 1.15, 1.2, 1.3, 1.4}

// DefaultConfig returns a Config populated with standard defaults.
func DefaultConfig() *Config {
	return &Config{
		Debug:               false,
		LogFormat:           "json",
		LogLevel:            "info",
		StorePath:           "pixel-scheduler.db",
		TemplateDir:         "res",
		Threshold:           DefaultThreshold,
		Scales:              append([]float64(nil), DefaultScales...),
		GoodEnoughScore:     0.92,
		MinTemplatePx:       30,
		Stride:              4,
		Refine:              true,
		DedupRadiusPx:       50,
		MaxMatchesPerScale:  10,
		CaptureFPS:          8,
		StepIntervalMs:      2000,
		CycleDelayMs:        1000,
		PhaseTimeoutMs:      3000000,
		StartupRewardClaims: 3,
		JitterPx:            5,
		Reward: RewardConfig{
			Enabled:         true,
			PrimaryTemplate: "jiangli.png",
			ProceedTemplate: "qianwang.jpg",
			PickSequence:    []int{1, 1, 1, 2, 3, 4, 5, 2},
			FocusSequence:   append([]string(nil), DefaultFocusSequence...),
			FocusTTLMs:      30000,
			SettleMs:        2000,
			AfterProceedMs:  2000,
			RetryMs:         800,
			PostGroupClaims: 2,
		},
		Keys: KeyConfig{
			Enabled:          true,
			TriggerKey:       "VOLUME_DOWN",
			Stdin:            true,
			SafeMode:         false,
			DebounceMs:       350,
			HealthIntervalMs: 30000,
			IdleMs:           60000,
			CaptureAttempts:  3,
			CaptureBackoffMs: 1200,
		},
		Groups: DefaultGroups(),
	}
}

// ClampThreshold restricts v to [MinThreshold, MaxThreshold]. Non-finite values
// fall back to DefaultThreshold.
func ClampThreshold(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return DefaultThreshold
	}
	return math.Max(MinThreshold, math.Min(MaxThreshold, v))
}

// Validate clamps/normalizes values to safe ranges. Numeric fields never fail;
// the returned error reports structural problems in the group definitions.
func (c *Config) Validate() error {
	c.Threshold = ClampThreshold(c.Threshold)
	scales := c.Scales[:0:0]
	for _, s := range c.Scales {
		if s > 0 && !math.IsInf(s, 0) && !math.IsNaN(s) {
			scales = append(scales, s)
		}
	}
	if len(scales) == 0 {
		scales = append(scales, DefaultScales...)
	}
	c.Scales = scales
	if c.GoodEnoughScore <= 0 || c.GoodEnoughScore > 1 {
		c.GoodEnoughScore = 0.92
	}
	if c.MinTemplatePx <= 0 {
		c.MinTemplatePx = 30
	}
	if c.Stride <= 0 {
		c.Stride = 4
	}
	if c.DedupRadiusPx <= 0 {
		c.DedupRadiusPx = 50
	}
	if c.MaxMatchesPerScale <= 0 {
		c.MaxMatchesPerScale = 10
	}
	if c.CaptureFPS < 0 {
		c.CaptureFPS = 0
	}
	if c.StepIntervalMs < 0 {
		c.StepIntervalMs = 2000
	}
	if c.CycleDelayMs < 0 {
		c.CycleDelayMs = 1000
	}
	if c.PhaseTimeoutMs < 0 {
		c.PhaseTimeoutMs = 0
	}
	if c.StartupRewardClaims < 0 {
		c.StartupRewardClaims = 0
	}
	if c.JitterPx < 0 {
		c.JitterPx = 0
	}
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	if c.LogFormat != "text" {
		c.LogFormat = "json"
	}

	r := &c.Reward
	if len(r.PickSequence) == 0 {
		r.PickSequence = []int{1}
	}
	for i, p := range r.PickSequence {
		if p < 1 {
			r.PickSequence[i] = 1
		}
	}
	if r.FocusTTLMs <= 0 {
		r.FocusTTLMs = 30000
	}
	if r.SettleMs < 0 {
		r.SettleMs = 2000
	}
	if r.AfterProceedMs < 0 {
		r.AfterProceedMs = 2000
	}
	if r.RetryMs < 0 {
		r.RetryMs = 800
	}
	if r.PostGroupClaims < 0 {
		r.PostGroupClaims = 0
	}
	if r.PostGroupClaims > 2 {
		r.PostGroupClaims = 2
	}

	k := &c.Keys
	if strings.TrimSpace(k.TriggerKey) == "" {
		k.TriggerKey = "VOLUME_DOWN"
	}
	if k.DebounceMs <= 0 {
		k.DebounceMs = 350
	}
	if k.HealthIntervalMs <= 0 {
		k.HealthIntervalMs = 30000
	}
	if k.IdleMs <= 0 {
		k.IdleMs = 60000
	}
	if k.CaptureAttempts <= 0 {
		k.CaptureAttempts = 3
	}
	if k.CaptureBackoffMs < 0 {
		k.CaptureBackoffMs = 1200
	}

	if len(c.Groups) == 0 {
		c.Groups = DefaultGroups()
	}
	if _, err := c.ResolveGroups(); err != nil {
		return err
	}
	return c.validateFocusSequence()
}

func (c *Config) validateFocusSequence() error {
	names := make(map[string]struct{}, len(c.Groups))
	for _, g := range c.Groups {
		names[g.Name] = struct{}{}
	}
	for _, n := range c.Reward.FocusSequence {
		if _, ok := names[n]; !ok {
			return zerr.With(zerr.Wrap(ErrUnknownGroup, "reward.focus_sequence names a group not in groups"), "group", n)
		}
	}
	return nil
}

// Clone returns a deep copy safe to hand to another goroutine.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	out.Scales = append([]float64(nil), c.Scales...)
	out.Reward.PickSequence = append([]int(nil), c.Reward.PickSequence...)
	out.Reward.FocusSequence = append([]string(nil), c.Reward.FocusSequence...)
	out.Groups = make([]GroupSpec, len(c.Groups))
	for i, g := range c.Groups {
		g.Steps = append([]StepSpec(nil), g.Steps...)
		out.Groups[i] = g
	}
	return &out
}

// Duration helpers keep millisecond fields readable at call sites.
func (c *Config) StepInterval() time.Duration { return ms(c.StepIntervalMs) }
func (c *Config) CycleDelay() time.Duration   { return ms(c.CycleDelayMs) }
func (c *Config) PhaseTimeout() time.Duration {
	return time.Duration(c.PhaseTimeoutMs) * time.Millisecond
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// Load attempts to read configuration from the given JSON or YAML file path. If
// the file does not exist it returns DefaultConfig(). On decode error it returns
// defaults with the error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, zerr.Wrap(err, ErrConfigRead.Error())
	}
	parsed, err := Parse(path, data)
	if err != nil {
		return cfg, err
	}
	return parsed, nil
}

// Parse decodes data on top of the defaults. The file extension selects YAML
// (.yaml/.yml) or JSON.
func Parse(path string, data []byte) (*Config, error) {
	cfg := DefaultConfig()
	jb, err := coerceToJSON(path, data)
	if err != nil {
		return cfg, err
	}
	// Explicit groups replace the default set instead of merging into it.
	// The default focus sequence names default groups, so it only applies
	// when the file keeps them.
	cfg.Groups = nil
	cfg.Reward.FocusSequence = nil
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return DefaultConfig(), zerr.Wrap(err, ErrConfigDecode.Error())
	}
	if cfg.Reward.FocusSequence == nil && len(cfg.Groups) == 0 {
		cfg.Reward.FocusSequence = append([]string(nil), DefaultFocusSequence...)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes the configuration to the given path in JSON format.
func (c *Config) Save(path string) error {
	_ = c.Validate()
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}
