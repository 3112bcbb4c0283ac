package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"

	"vkads-report/browser"
	"vkads-report/config"
	"vkads-report/dashboard"
	"vkads-report/posts"
	"vkads-report/report"
	"vkads-report/screenshot"
	"vkads-report/session"
)

// app holds what the commands share: one browser, one page, one session
// store
type app struct {
	cfg     *config.Config
	log     *logrus.Entry
	store   session.Store
	browser *browser.Browser
}

func (a *app) dispatch(ctx context.Context, command string) error {
	switch command {
	case "auth":
		return a.auth(ctx)
	case "posts":
		items, err := a.loadPosts()
		if err != nil {
			return err
		}
		if err := a.start(ctx); err != nil {
			return err
		}
		a.capturePosts(ctx, items)
		return nil
	case "stats":
		groups := a.cfg.Dashboard.Groups
		if len(groups) == 0 {
			items, err := a.loadPosts()
			if err != nil {
				return err
			}
			groups = posts.Groups(items)
		}
		if err := a.start(ctx); err != nil {
			return err
		}
		a.captureStats(ctx, groups)
		return nil
	case "report":
		items, err := a.loadPosts()
		if err != nil {
			return err
		}
		for i := range items {
			items[i].Screenshot = filepath.Join(a.cfg.OutputDir, posts.FileName(i+1))
		}
		return a.writeReport(items)
	default:
		items, err := a.loadPosts()
		if err != nil {
			return err
		}
		if err := a.start(ctx); err != nil {
			return err
		}
		a.capturePosts(ctx, items)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		groups := a.cfg.Dashboard.Groups
		if len(groups) == 0 {
			groups = posts.Groups(items)
		}
		a.captureStats(ctx, groups)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return a.writeReport(items)
	}
}

// start opens the session store, launches Chrome and restores the saved
// session
func (a *app) start(ctx context.Context) error {
	store, err := session.Open(a.cfg.Session)
	if err != nil {
		return err
	}
	a.store = store

	var proxy *config.ProxyProfile
	if p, ok := a.cfg.ActiveProxy(); ok {
		proxy = &p
		a.log.WithField("proxy", p.Server).Info("using proxy")
	}
	b, err := browser.Launch(ctx, a.cfg.Browser, proxy, a.log)
	if err != nil {
		return err
	}
	a.browser = b
	b.Page().SetActionTimeout(a.cfg.Timeouts.Action.Duration)
	return a.restoreSession(ctx)
}

func (a *app) close() {
	if a.browser != nil {
		a.browser.Close()
		a.browser = nil
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.WithError(err).Debug("close session store")
		}
		a.store = nil
	}
}

// restoreSession installs saved cookies, then visits every recorded origin to
// put its localStorage back
func (a *app) restoreSession(ctx context.Context) error {
	st, err := a.store.Load(ctx)
	if errors.Is(err, session.ErrNoState) {
		a.log.Warn("no saved session, run the auth command to log in")
		return nil
	}
	if err != nil {
		return err
	}
	page := a.browser.Page()
	if err := page.Run(ctx, session.SetCookies(st)); err != nil {
		return fmt.Errorf("restore cookies: %w", err)
	}
	for _, o := range st.Origins {
		if len(o.LocalStorage) == 0 {
			continue
		}
		if err := page.Navigate(ctx, o.Origin, a.cfg.Timeouts.PageLoad.Duration); err != nil {
			a.log.WithError(err).WithField("origin", o.Origin).Warn("could not restore localStorage")
			continue
		}
		if err := page.Run(ctx, session.SetLocalStorage(st, o.Origin), chromedp.Reload()); err != nil {
			a.log.WithError(err).WithField("origin", o.Origin).Warn("could not restore localStorage")
		}
	}
	a.log.WithFields(logrus.Fields{"cookies": len(st.Cookies), "origins": len(st.Origins)}).Info("session restored")
	return nil
}

func (a *app) saveSession(ctx context.Context) error {
	st := &session.State{}
	if prev, err := a.store.Load(ctx); err == nil {
		st = prev
	}
	if err := a.browser.Page().Run(ctx, session.Capture(st)); err != nil {
		return err
	}
	if err := a.store.Save(ctx, st); err != nil {
		return err
	}
	a.log.WithField("cookies", len(st.Cookies)).Info("session saved")
	return nil
}

// auth opens the login page in a visible browser and saves the session once
// the operator confirms the login
func (a *app) auth(ctx context.Context) error {
	a.cfg.Browser.Headless = false
	if err := a.start(ctx); err != nil {
		return err
	}
	if err := a.browser.Page().Navigate(ctx, a.cfg.Dashboard.LoginURL, a.cfg.Timeouts.PageLoad.Duration); err != nil {
		return err
	}
	fmt.Println("Log in in the browser window, then press Enter here.")

	entered := make(chan struct{})
	go func() {
		_, _ = bufio.NewReader(os.Stdin).ReadString('\n')
		close(entered)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-entered:
	}
	return a.saveSession(ctx)
}

func (a *app) loadPosts() ([]posts.Post, error) {
	items, err := posts.Load(a.cfg.Posts.File, posts.LoadOptions{
		Sheet:      a.cfg.Posts.Sheet,
		URLPattern: a.cfg.Posts.URLPattern,
	})
	if err != nil {
		return nil, err
	}
	a.log.WithFields(logrus.Fields{"posts": len(items), "groups": len(posts.Groups(items))}).Info("posts loaded")
	return items, nil
}

func (a *app) capturePosts(ctx context.Context, items []posts.Post) {
	page := a.browser.Page()
	if err := page.SetViewport(ctx, a.cfg.Posts.Viewport); err != nil {
		a.log.WithError(err).Warn("could not resize viewport for posts")
	}
	defer func() {
		if err := page.SetViewport(context.WithoutCancel(ctx), a.cfg.Browser.Viewport); err != nil {
			a.log.WithError(err).Debug("could not restore viewport")
		}
	}()

	log := a.log.WithField("stage", "posts")
	c := posts.NewCapturer(page, screenshot.NewCapturer(page, log), log, posts.CaptureOptions{
		PageLoad:   a.cfg.Timeouts.PageLoad.Duration,
		Delay:      a.cfg.Timeouts.ScreenshotDelay.Duration,
		BrowserBar: a.cfg.Posts.BrowserBar,
	})
	failures := c.CaptureAll(ctx, items, a.cfg.OutputDir)

	fmt.Printf("Posts: %d captured, %d failed\n", len(items)-len(failures), len(failures))
	for _, f := range failures {
		fmt.Printf("  post %d %s: %v\n", f.Index+1, f.URL, f.Err)
	}
}

func (a *app) captureStats(ctx context.Context, groups []string) {
	if len(groups) == 0 {
		a.log.Warn("no groups to capture")
		return
	}
	page := a.browser.Page()
	log := a.log.WithField("stage", "stats")
	url := a.cfg.Dashboard.URL
	if url == "" {
		url = a.cfg.Dashboard.LoginURL
	}
	d := dashboard.NewDriver(page, screenshot.NewCapturer(page, log), log, dashboard.Options{
		URL:       url,
		OutputDir: a.cfg.OutputDir,
		Tabs:      a.cfg.Dashboard.Tabs,
		Zoom:      a.cfg.Dashboard.Zoom,
		Zooms: dashboard.Zooms{
			Demography: a.cfg.Dashboard.DemographyZoom,
			Geo:        a.cfg.Dashboard.GeoZoom,
		},
		PageLoad:    a.cfg.Timeouts.PageLoad.Duration,
		NetworkIdle: a.cfg.Timeouts.NetworkIdle.Duration,
		CaptchaWait: a.cfg.Dashboard.CaptchaWait.Duration,
		Timings:     dashboard.DefaultTimings,
		OnCaptcha:   a.saveSession,
	})
	sum := d.CaptureGroups(ctx, groups)

	fmt.Printf("Groups: %d captured, %d failed, %d images\n", len(sum.Succeeded), len(sum.Failed), len(sum.Captures))
	for _, f := range sum.Failed {
		fmt.Printf("  %s: %v\n", f.Group, f.Err)
	}
}

func (a *app) writeReport(items []posts.Post) error {
	return report.Generate(items, report.Options{
		Path:       a.cfg.Report.Path,
		Title:      a.cfg.Report.Title,
		AssetsDir:  a.cfg.OutputDir,
		Tabs:       a.cfg.Dashboard.Tabs,
		ImageWidth: a.cfg.Report.ImageWidth,
	}, a.log.WithField("stage", "report"))
}
