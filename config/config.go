package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Viewport represents browser viewport dimensions
type Viewport struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// PostsConfig describes where post links come from and how posts are captured
type PostsConfig struct {
	File       string   `yaml:"file"`
	Sheet      string   `yaml:"sheet"`
	URLPattern string   `yaml:"url_pattern"`
	Viewport   Viewport `yaml:"viewport"`
	BrowserBar bool     `yaml:"browser_bar"`
}

// DashboardConfig describes the ads dashboard and the statistics tabs to capture
type DashboardConfig struct {
	URL            string   `yaml:"url"`
	LoginURL       string   `yaml:"login_url"`
	Groups         []string `yaml:"groups"`
	Tabs           []string `yaml:"tabs"`
	Zoom           float64  `yaml:"zoom"`
	DemographyZoom float64  `yaml:"demography_zoom"`
	GeoZoom        float64  `yaml:"geo_zoom"`
	CaptchaWait    Duration `yaml:"captcha_wait"`
}

// ReportConfig controls the generated Word document
type ReportConfig struct {
	Path       string  `yaml:"path"`
	Title      string  `yaml:"title"`
	ImageWidth float64 `yaml:"image_width"` // inches
}

// BrowserConfig controls how Chrome is launched
type BrowserConfig struct {
	Headless    bool     `yaml:"headless"`
	Viewport    Viewport `yaml:"viewport"`
	UserAgent   string   `yaml:"user_agent"`
	ExecPath    string   `yaml:"exec_path"`
	RemoteURL   string   `yaml:"remote_url"`
	UseDocker   bool     `yaml:"use_docker"`
	UserDataDir string   `yaml:"user_data_dir"`
	Locale      string   `yaml:"locale"`
	Timezone    string   `yaml:"timezone"`
}

// ProxyProfile is a single named proxy endpoint
type ProxyProfile struct {
	Server   string `yaml:"server"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ProxyConfig holds the named proxy profiles and which one is active
type ProxyConfig struct {
	Enabled  bool                    `yaml:"enabled"`
	Active   string                  `yaml:"active"`
	Profiles map[string]ProxyProfile `yaml:"profiles"`
}

// TimeoutsConfig holds the wall-clock budgets for navigation and settling
type TimeoutsConfig struct {
	PageLoad        Duration `yaml:"page_load"`
	NetworkIdle     Duration `yaml:"network_idle"`
	ScreenshotDelay Duration `yaml:"screenshot_delay"`
	// Action bounds a single click or fill
	Action Duration `yaml:"action"`
}

// RedisConfig selects a Redis-backed session store when Addr is set
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// SessionConfig controls where the browser storage state is persisted
type SessionConfig struct {
	File  string      `yaml:"file"`
	Redis RedisConfig `yaml:"redis"`
}

// LoggingConfig selects log verbosity, format and an optional rotating file
type LoggingConfig struct {
	Level      string `yaml:"level"`
	JSON       bool   `yaml:"json"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Config represents the application configuration
type Config struct {
	OutputDir string          `yaml:"output_dir"`
	Posts     PostsConfig     `yaml:"posts"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Report    ReportConfig    `yaml:"report"`
	Browser   BrowserConfig   `yaml:"browser"`
	Proxy     ProxyConfig     `yaml:"proxy"`
	Timeouts  TimeoutsConfig  `yaml:"timeouts"`
	Session   SessionConfig   `yaml:"session"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// Default returns a Config populated with the values the tool was tuned with
func Default() Config {
	return Config{
		OutputDir: "assets",
		Posts: PostsConfig{
			File:       "posts.xlsx",
			URLPattern: "vk.com/wall",
			Viewport:   Viewport{Width: 1280, Height: 1000},
			BrowserBar: true,
		},
		Dashboard: DashboardConfig{
			LoginURL:       "https://ads.vk.com/hq/dashboard/ad_groups",
			Tabs:           []string{"overview", "demography", "geo"},
			Zoom:           0.8,
			DemographyZoom: 0.6,
			GeoZoom:        0.7,
			CaptchaWait:    DurationFrom(30 * time.Second),
		},
		Report: ReportConfig{
			Path:       "Отчет.docx",
			Title:      "Отчёт по рекламным кампаниям VK",
			ImageWidth: 5,
		},
		Browser: BrowserConfig{
			Viewport:    Viewport{Width: 1920, Height: 1200},
			UserDataDir: ".chrome-profile",
			Locale:      "ru-RU",
			Timezone:    "Europe/Moscow",
		},
		Proxy: ProxyConfig{
			Active:   "default",
			Profiles: map[string]ProxyProfile{},
		},
		Timeouts: TimeoutsConfig{
			PageLoad:        DurationFrom(60 * time.Second),
			NetworkIdle:     DurationFrom(10 * time.Second),
			ScreenshotDelay: DurationFrom(2 * time.Second),
			Action:          DurationFrom(30 * time.Second),
		},
		Session: SessionConfig{
			File: "vk_storage.json",
			Redis: RedisConfig{
				Key: "vkads:storage_state",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// LoadConfig loads configuration from a file, applies environment overrides and
// makes sure the output directory exists
func LoadConfig(path string) (*Config, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	defer fh.Close()

	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg, err := LoadFromReader(fh, os.Getenv)
	if err != nil {
		return nil, err
	}

	if err := ensureOutputDir(cfg.OutputDir); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes configuration from an arbitrary reader. getenv supplies
// environment overrides and may be nil.
func LoadFromReader(r io.Reader, getenv func(string) string) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	if getenv != nil {
		cfg.applyEnv(getenv)
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ActiveProxy returns the proxy profile to use, if any
func (c Config) ActiveProxy() (ProxyProfile, bool) {
	if !c.Proxy.Enabled {
		return ProxyProfile{}, false
	}
	p, ok := c.Proxy.Profiles[c.Proxy.Active]
	if !ok || p.Server == "" {
		return ProxyProfile{}, false
	}
	return p, true
}

// Validate checks invariants and rejects unusable settings
func (c Config) Validate() error {
	if c.OutputDir == "" {
		return errors.New("output_dir must be set")
	}
	if c.Browser.Viewport.Width <= 0 || c.Browser.Viewport.Height <= 0 {
		return fmt.Errorf("browser.viewport must be positive (got %dx%d)", c.Browser.Viewport.Width, c.Browser.Viewport.Height)
	}
	if c.Posts.Viewport.Width <= 0 || c.Posts.Viewport.Height <= 0 {
		return fmt.Errorf("posts.viewport must be positive (got %dx%d)", c.Posts.Viewport.Width, c.Posts.Viewport.Height)
	}
	if c.Posts.URLPattern == "" {
		return errors.New("posts.url_pattern must be set")
	}
	for name, zoom := range map[string]float64{
		"dashboard.zoom":            c.Dashboard.Zoom,
		"dashboard.demography_zoom": c.Dashboard.DemographyZoom,
		"dashboard.geo_zoom":        c.Dashboard.GeoZoom,
	} {
		if zoom <= 0 || zoom > 3 {
			return fmt.Errorf("%s must be in (0, 3] (got %g)", name, zoom)
		}
	}
	if len(c.Dashboard.Tabs) == 0 {
		return errors.New("dashboard.tabs must include at least one tab")
	}
	if c.Timeouts.PageLoad.Duration <= 0 {
		return fmt.Errorf("timeouts.page_load must be > 0 (got %s)", c.Timeouts.PageLoad)
	}
	if c.Timeouts.Action.Duration <= 0 {
		return fmt.Errorf("timeouts.action must be > 0 (got %s)", c.Timeouts.Action)
	}
	if c.Timeouts.NetworkIdle.Duration < 0 || c.Timeouts.ScreenshotDelay.Duration < 0 {
		return errors.New("timeouts must not be negative")
	}
	if c.Report.ImageWidth <= 0 {
		return fmt.Errorf("report.image_width must be > 0 (got %g)", c.Report.ImageWidth)
	}
	if c.Proxy.Enabled {
		p, ok := c.Proxy.Profiles[c.Proxy.Active]
		if !ok {
			return fmt.Errorf("proxy.active references non-existent profile: %s", c.Proxy.Active)
		}
		if p.Server == "" {
			return fmt.Errorf("proxy profile %s is missing server", c.Proxy.Active)
		}
	}
	if c.Session.File == "" && c.Session.Redis.Addr == "" {
		return errors.New("session.file or session.redis.addr must be set")
	}
	return nil
}

func (c *Config) normalise() {
	c.OutputDir = strings.TrimSpace(c.OutputDir)
	c.Dashboard.URL = strings.TrimSpace(c.Dashboard.URL)
	c.Dashboard.Groups = cleanList(c.Dashboard.Groups, strings.ToUpper)
	c.Dashboard.Tabs = cleanList(c.Dashboard.Tabs, strings.ToLower)
	c.Proxy.Active = strings.TrimSpace(c.Proxy.Active)
	if c.Proxy.Profiles == nil {
		c.Proxy.Profiles = map[string]ProxyProfile{}
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
}

// cleanList trims, transforms and de-duplicates values while keeping their order
func cleanList(values []string, transform func(string) string) []string {
	seen := make(map[string]struct{}, len(values))
	cleaned := make([]string, 0, len(values))
	for _, v := range values {
		v = transform(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		cleaned = append(cleaned, v)
	}
	return cleaned
}

// ensureOutputDir ensures the output directory exists
func ensureOutputDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}
