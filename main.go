package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"vkads-report/config"
	"vkads-report/logging"
)

const usage = `usage: vkads-report [command] [flags]

commands:
  run      capture posts and statistics, then write the report (default)
  auth     log in interactively and save the session
  posts    capture post screenshots only
  stats    capture dashboard statistics only
  report   write the report from existing screenshots
`

// commonFlags are shared by every command
type commonFlags struct {
	configPath string
	proxy      string
	headless   string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "config.yaml", "Path to configuration file")
	fs.StringVar(&c.proxy, "proxy", "", "Turn the configured proxy on or off (on|off)")
	fs.StringVar(&c.headless, "headless", "", "Run Chrome headless (true|false, defaults to config)")
}

// apply overrides the loaded configuration with the command line
func (c *commonFlags) apply(cfg *config.Config) error {
	switch strings.ToLower(c.proxy) {
	case "":
	case "on":
		cfg.Proxy.Enabled = true
	case "off":
		cfg.Proxy.Enabled = false
	default:
		return fmt.Errorf("-proxy must be on or off, got %q", c.proxy)
	}
	if c.headless != "" {
		v, err := strconv.ParseBool(c.headless)
		if err != nil {
			return fmt.Errorf("-headless: %w", err)
		}
		cfg.Browser.Headless = v
	}
	return nil
}

// statsFlags tune the dashboard pass
type statsFlags struct {
	groups         string
	tabs           string
	geoZoom        float64
	demographyZoom float64
}

func (s *statsFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&s.groups, "groups", "", "Comma-separated group identifiers (defaults to config, then the spreadsheet)")
	fs.StringVar(&s.tabs, "tabs", "", "Comma-separated statistics tabs (defaults to config)")
	fs.Float64Var(&s.geoZoom, "geo-zoom", 0, "Page zoom for the geo map")
	fs.Float64Var(&s.demographyZoom, "demography-zoom", 0, "Page zoom for the demography block")
}

func (s *statsFlags) apply(cfg *config.Config) {
	if groups := splitList(s.groups, strings.ToUpper); len(groups) > 0 {
		cfg.Dashboard.Groups = groups
	}
	if tabs := splitList(s.tabs, strings.ToLower); len(tabs) > 0 {
		cfg.Dashboard.Tabs = tabs
	}
	if s.geoZoom > 0 {
		cfg.Dashboard.GeoZoom = s.geoZoom
	}
	if s.demographyZoom > 0 {
		cfg.Dashboard.DemographyZoom = s.demographyZoom
	}
}

func splitList(raw string, transform func(string) string) []string {
	var out []string
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, transform(v))
		}
	}
	return out
}

func main() {
	command := "run"
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}

	fs := flag.NewFlagSet(command, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	var common commonFlags
	var stats statsFlags
	common.register(fs)
	switch command {
	case "run", "stats":
		stats.register(fs)
	case "auth", "posts", "report":
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", command)
		fs.Usage()
		os.Exit(2)
	}
	_ = fs.Parse(args)

	cfg, err := config.LoadConfig(common.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := common.apply(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	stats.apply(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	log := logger.WithFields(logrus.Fields{"run_id": uuid.NewString(), "command": command})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{cfg: cfg, log: log}
	defer a.close()

	startTime := time.Now()
	if err := a.dispatch(ctx, command); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn("interrupted")
		} else {
			log.WithError(err).Error("run failed")
		}
		a.close()
		os.Exit(1)
	}
	log.WithField("elapsed", time.Since(startTime).Round(time.Second)).Info("done")
}
