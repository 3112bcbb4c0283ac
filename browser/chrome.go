package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"

	"vkads-report/config"
)

const (
	dockerContainer = "vkads-chrome"
	dockerImage     = "browserless/chrome"
	dockerDevTools  = "http://localhost:9222"
)

// ErrChromeNotFound is returned when no local Chrome binary could be located
var ErrChromeNotFound = errors.New("could not find Chrome executable")

// Browser owns one Chrome process (or remote connection) and its single tab
type Browser struct {
	page *Page
	log  logrus.FieldLogger

	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	docker      bool
}

// Launch starts Chrome according to cfg and opens the tab every capture runs
// in. A nil proxy means a direct connection.
func Launch(ctx context.Context, cfg config.BrowserConfig, proxy *config.ProxyProfile, log logrus.FieldLogger) (*Browser, error) {
	b := &Browser{log: log}

	allocCtx, err := b.allocate(ctx, cfg, proxy)
	if err != nil {
		return nil, err
	}

	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(log.Debugf),
		chromedp.WithErrorf(log.Debugf),
	)
	b.cancelTab = cancelTab

	tracker := newRequestTracker()
	chromedp.ListenTarget(tabCtx, func(ev any) {
		tracker.observe(ev)
		if proxy != nil {
			answerProxyAuth(tabCtx, ev, proxy, log)
		}
	})

	setup := []chromedp.Action{
		network.Enable(),
		emulation.SetDeviceMetricsOverride(int64(cfg.Viewport.Width), int64(cfg.Viewport.Height), 1, false),
	}
	if cfg.Timezone != "" {
		setup = append(setup, emulation.SetTimezoneOverride(cfg.Timezone))
	}
	if cfg.Locale != "" {
		setup = append(setup, emulation.SetLocaleOverride().WithLocale(cfg.Locale))
	}
	if proxy != nil && proxy.Username != "" {
		setup = append(setup, fetch.Enable().WithHandleAuthRequests(true))
	}
	if err := chromedp.Run(tabCtx, setup...); err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	b.page = &Page{
		ctx:      tabCtx,
		viewport: cfg.Viewport,
		tracker:  tracker,
		log:      log,

		actionTimeout: DefaultActionTimeout,
	}
	return b, nil
}

// allocate picks the Chrome implementation. Priority: remote URL, explicit or
// discovered local Chrome, Docker Chrome.
func (b *Browser) allocate(ctx context.Context, cfg config.BrowserConfig, proxy *config.ProxyProfile) (context.Context, error) {
	if cfg.RemoteURL != "" {
		b.log.WithField("url", cfg.RemoteURL).Info("using remote Chrome")
		allocCtx, cancel := chromedp.NewRemoteAllocator(ctx, cfg.RemoteURL)
		b.cancelAlloc = cancel
		return allocCtx, nil
	}

	opts := allocatorOptions(cfg, proxy)
	if !cfg.UseDocker {
		execPath := cfg.ExecPath
		if execPath == "" {
			var err error
			execPath, err = findChromeExecutable()
			if err != nil {
				b.log.WithError(err).Warn("local Chrome not found, trying Docker Chrome")
			}
		}
		if execPath != "" {
			b.log.WithField("path", execPath).Info("using local Chrome executable")
			allocCtx, cancel := chromedp.NewExecAllocator(ctx, append(opts, chromedp.ExecPath(execPath))...)
			b.cancelAlloc = cancel
			return allocCtx, nil
		}
	}

	url, started, err := startDockerChrome(ctx, b.log)
	if err != nil {
		if started {
			stopDockerChrome(b.log)
		}
		return nil, fmt.Errorf("no usable Chrome: %w", err)
	}
	b.docker = started
	b.log.WithField("url", url).Info("using Docker Chrome")
	allocCtx, cancel := chromedp.NewRemoteAllocator(ctx, url)
	b.cancelAlloc = cancel
	return allocCtx, nil
}

// allocatorOptions builds the Chrome command line
func allocatorOptions(cfg config.BrowserConfig, proxy *config.ProxyProfile) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.WindowSize(cfg.Viewport.Width, cfg.Viewport.Height),
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}
	if cfg.Locale != "" {
		opts = append(opts, chromedp.Flag("lang", cfg.Locale))
	}
	if proxy != nil && proxy.Server != "" {
		opts = append(opts, chromedp.ProxyServer(proxy.Server))
	}
	return opts
}

// answerProxyAuth replies to the proxy's auth challenge with the configured
// credentials and releases requests paused by the Fetch domain
func answerProxyAuth(ctx context.Context, ev any, proxy *config.ProxyProfile, log logrus.FieldLogger) {
	switch ev := ev.(type) {
	case *fetch.EventAuthRequired:
		go func() {
			execCtx := cdp.WithExecutor(ctx, chromedp.FromContext(ctx).Target)
			resp := &fetch.AuthChallengeResponse{
				Response: fetch.AuthChallengeResponseResponseProvideCredentials,
				Username: proxy.Username,
				Password: proxy.Password,
			}
			if err := fetch.ContinueWithAuth(ev.RequestID, resp).Do(execCtx); err != nil {
				log.WithError(err).Warn("proxy auth reply failed")
			}
		}()
	case *fetch.EventRequestPaused:
		go func() {
			execCtx := cdp.WithExecutor(ctx, chromedp.FromContext(ctx).Target)
			if err := fetch.ContinueRequest(ev.RequestID).Do(execCtx); err != nil {
				log.WithError(err).Debug("continue request failed")
			}
		}()
	}
}

// Page returns the tab all work is done in
func (b *Browser) Page() *Page { return b.page }

// Close shuts the tab and the browser down and stops Docker Chrome if this
// process started it
func (b *Browser) Close() {
	if b.cancelTab != nil {
		b.cancelTab()
	}
	if b.cancelAlloc != nil {
		b.cancelAlloc()
	}
	if b.docker {
		stopDockerChrome(b.log)
	}
}

// findChromeExecutable attempts to locate the Chrome executable on the system
func findChromeExecutable() (string, error) {
	if envPath := os.Getenv("CHROME_PATH"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
	}

	for _, path := range chromePaths(runtime.GOOS) {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	for _, name := range []string{"google-chrome", "chromium", "chromium-browser"} {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", ErrChromeNotFound
}

func chromePaths(goos string) []string {
	switch goos {
	case "darwin":
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Google Chrome Canary.app/Contents/MacOS/Google Chrome Canary",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
		}
	case "windows":
		return []string{
			filepath.Join(os.Getenv("ProgramFiles"), "Google/Chrome/Application/chrome.exe"),
			filepath.Join(os.Getenv("ProgramFiles(x86)"), "Google/Chrome/Application/chrome.exe"),
			filepath.Join(os.Getenv("LocalAppData"), "Google/Chrome/Application/chrome.exe"),
		}
	case "linux":
		return []string{
			"/usr/bin/google-chrome",
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
			"/snap/bin/chromium",
		}
	}
	return nil
}

// startDockerChrome starts a Chrome container if one is not already running
// and returns its DevTools address. started reports whether this call ran
// the container.
func startDockerChrome(ctx context.Context, log logrus.FieldLogger) (url string, started bool, err error) {
	if _, err := exec.LookPath("docker"); err != nil {
		return "", false, fmt.Errorf("docker not installed: %w", err)
	}

	running, err := dockerContainerRunning(ctx)
	if err != nil {
		return "", false, err
	}
	if running {
		log.Info("using existing Chrome container")
		return dockerDevTools, false, nil
	}

	log.Info("starting Chrome container")
	cmd := exec.CommandContext(ctx, "docker", "run", "-d", "--rm", "--name", dockerContainer, "-p", "9222:9222", dockerImage)
	if output, err := cmd.CombinedOutput(); err != nil {
		return "", false, fmt.Errorf("failed to start chrome container: %w, output: %s", err, strings.TrimSpace(string(output)))
	}

	client := &http.Client{Timeout: 2 * time.Second}
	for i := 0; i < 8; i++ {
		if err := probeDevTools(ctx, client, dockerDevTools); err == nil {
			log.Info("Chrome container is ready")
			return dockerDevTools, true, nil
		}
		select {
		case <-ctx.Done():
			return "", true, ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return "", true, errors.New("chrome container started but not responding")
}

func dockerContainerRunning(ctx context.Context) (bool, error) {
	out, err := exec.CommandContext(ctx, "docker", "ps", "-q", "-f", "name="+dockerContainer, "-f", "status=running").Output()
	if err != nil {
		return false, fmt.Errorf("failed to check for running chrome container: %w", err)
	}
	return len(strings.TrimSpace(string(out))) > 0, nil
}

// probeDevTools checks that baseURL serves the DevTools version endpoint
func probeDevTools(ctx context.Context, client *http.Client, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/json/version", nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("devtools returned %s", resp.Status)
	}
	var version struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&version); err != nil {
		return fmt.Errorf("decode devtools version: %w", err)
	}
	if version.WebSocketDebuggerURL == "" {
		return errors.New("devtools version has no webSocketDebuggerUrl")
	}
	return nil
}

// stopDockerChrome stops the container started by startDockerChrome
func stopDockerChrome(log logrus.FieldLogger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	running, err := dockerContainerRunning(ctx)
	if err != nil || !running {
		return
	}
	log.Info("stopping Chrome Docker container")
	if err := exec.CommandContext(ctx, "docker", "stop", dockerContainer).Run(); err != nil {
		log.WithError(err).Warn("failed to stop Chrome container")
		return
	}
	log.Info("Chrome Docker container stopped")
}
