package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
)

// loadDotEnv reads .env from the working directory when present. Values already
// in the environment win.
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("error loading .env: %w", err)
	}
	return nil
}

// applyEnv lets secrets stay out of the config file
func (c *Config) applyEnv(getenv func(string) string) {
	if server := strings.TrimSpace(getenv("PROXY_SERVER")); server != "" {
		p := c.Proxy.Profiles[c.Proxy.Active]
		p.Server = server
		c.setProxyProfile(p)
	}
	if user := getenv("PROXY_USERNAME"); user != "" {
		p := c.Proxy.Profiles[c.Proxy.Active]
		p.Username = user
		p.Password = getenv("PROXY_PASSWORD")
		c.setProxyProfile(p)
	}
	if path := strings.TrimSpace(getenv("CHROME_PATH")); path != "" && c.Browser.ExecPath == "" {
		c.Browser.ExecPath = path
	}
	if addr := strings.TrimSpace(getenv("REDIS_ADDR")); addr != "" {
		c.Session.Redis.Addr = addr
	}
	if pw := getenv("REDIS_PASSWORD"); pw != "" {
		c.Session.Redis.Password = pw
	}
}

func (c *Config) setProxyProfile(p ProxyProfile) {
	if c.Proxy.Profiles == nil {
		c.Proxy.Profiles = map[string]ProxyProfile{}
	}
	if c.Proxy.Active == "" {
		c.Proxy.Active = "default"
	}
	c.Proxy.Profiles[c.Proxy.Active] = p
}
