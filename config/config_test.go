package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestLoadFromReader_Defaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(""), nil)
	require.NoError(t, err)

	assert.Equal(t, "assets", cfg.OutputDir)
	assert.Equal(t, []string{"overview", "demography", "geo"}, cfg.Dashboard.Tabs)
	assert.Equal(t, 0.8, cfg.Dashboard.Zoom)
	assert.Equal(t, 0.6, cfg.Dashboard.DemographyZoom)
	assert.Equal(t, 0.7, cfg.Dashboard.GeoZoom)
	assert.Equal(t, 60*time.Second, cfg.Timeouts.PageLoad.Duration)
	assert.Equal(t, 10*time.Second, cfg.Timeouts.NetworkIdle.Duration)
	assert.Equal(t, 30*time.Second, cfg.Timeouts.Action.Duration)
	assert.Equal(t, Viewport{Width: 1920, Height: 1200}, cfg.Browser.Viewport)
	assert.Equal(t, "vk_storage.json", cfg.Session.File)
}

func TestLoadFromReader_YAML(t *testing.T) {
	doc := `
output_dir: out
dashboard:
  url: " https://ads.example.com/dashboard "
  groups: ["цр25_a", "ЦР25_A", "  ", "цр25_b"]
  tabs: [Overview, GEO]
  geo_zoom: 0.5
timeouts:
  page_load: 30s
  network_idle: 4
proxy:
  enabled: true
  active: backup
  profiles:
    backup:
      server: http://proxy.local:8080
`
	cfg, err := LoadFromReader(strings.NewReader(doc), nil)
	require.NoError(t, err)

	assert.Equal(t, "out", cfg.OutputDir)
	assert.Equal(t, "https://ads.example.com/dashboard", cfg.Dashboard.URL)
	assert.Equal(t, []string{"ЦР25_A", "ЦР25_B"}, cfg.Dashboard.Groups)
	assert.Equal(t, []string{"overview", "geo"}, cfg.Dashboard.Tabs)
	assert.Equal(t, 0.5, cfg.Dashboard.GeoZoom)
	assert.Equal(t, 30*time.Second, cfg.Timeouts.PageLoad.Duration)
	assert.Equal(t, 4*time.Second, cfg.Timeouts.NetworkIdle.Duration)

	proxy, ok := cfg.ActiveProxy()
	require.True(t, ok)
	assert.Equal(t, "http://proxy.local:8080", proxy.Server)
}

func TestLoadFromReader_AcceptsJSON(t *testing.T) {
	doc := `{"output_dir": "json-out", "browser": {"headless": true, "viewport": {"width": 800, "height": 600}}}`
	cfg, err := LoadFromReader(strings.NewReader(doc), nil)
	require.NoError(t, err)
	assert.Equal(t, "json-out", cfg.OutputDir)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, Viewport{Width: 800, Height: 600}, cfg.Browser.Viewport)
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("not_a_field: 1\n"), nil)
	assert.Error(t, err)
}

func TestLoadFromReader_InvalidDuration(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("timeouts:\n  page_load: soon\n"), nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty output dir", func(c *Config) { c.OutputDir = "" }},
		{"zero viewport", func(c *Config) { c.Browser.Viewport.Width = 0 }},
		{"zoom out of range", func(c *Config) { c.Dashboard.GeoZoom = 0 }},
		{"no tabs", func(c *Config) { c.Dashboard.Tabs = nil }},
		{"no page load budget", func(c *Config) { c.Timeouts.PageLoad = Duration{} }},
		{"no action budget", func(c *Config) { c.Timeouts.Action = Duration{} }},
		{"missing proxy profile", func(c *Config) {
			c.Proxy.Enabled = true
			c.Proxy.Active = "nope"
		}},
		{"proxy profile without server", func(c *Config) {
			c.Proxy.Enabled = true
			c.Proxy.Profiles["default"] = ProxyProfile{}
		}},
		{"no session store", func(c *Config) { c.Session.File = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestApplyEnv(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader("proxy:\n  enabled: true\n"), envMap(map[string]string{
		"PROXY_SERVER":   "socks5://10.0.0.1:1080",
		"PROXY_USERNAME": "user",
		"PROXY_PASSWORD": "secret",
		"CHROME_PATH":    "/opt/chrome",
		"REDIS_ADDR":     "redis:6379",
	}))
	require.NoError(t, err)

	proxy, ok := cfg.ActiveProxy()
	require.True(t, ok)
	assert.Equal(t, ProxyProfile{Server: "socks5://10.0.0.1:1080", Username: "user", Password: "secret"}, proxy)
	assert.Equal(t, "/opt/chrome", cfg.Browser.ExecPath)
	assert.Equal(t, "redis:6379", cfg.Session.Redis.Addr)
}

func TestActiveProxy_Disabled(t *testing.T) {
	cfg := Default()
	cfg.Proxy.Profiles["default"] = ProxyProfile{Server: "http://p:1"}
	_, ok := cfg.ActiveProxy()
	assert.False(t, ok)
}

func TestLoadConfig_CreatesOutputDir(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "nested", "assets")
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output_dir: "+out+"\n"), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, out, cfg.OutputDir)
	assert.DirExists(t, out)
}
