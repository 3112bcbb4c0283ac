// Package dashboard drives the ads dashboard: it finds a campaign, opens its
// statistics and captures each statistics tab.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"vkads-report/screenshot"
)

var (
	// ErrPlanNotFound means the search left no row whose link carries the
	// campaign name
	ErrPlanNotFound = errors.New("ad plan not found")
	// ErrStatsButtonNotFound means the row has no statistics action
	ErrStatsButtonNotFound = errors.New("statistics button not found")
)

// Timings are the fixed waits after dashboard interactions
type Timings struct {
	AfterOpen        time.Duration
	AfterFocus       time.Duration
	AfterClear       time.Duration
	AfterType        time.Duration
	AfterSubmit      time.Duration
	AfterContains    time.Duration
	AfterSearch      time.Duration
	AfterScrollToRow time.Duration
	AfterHover       time.Duration
	AfterStatsOpen   time.Duration
	AfterTab         time.Duration
	AfterGeoTab      time.Duration
}

// DefaultTimings are the waits the dashboard needs in practice
var DefaultTimings = Timings{
	AfterOpen:        6 * time.Second,
	AfterFocus:       time.Second,
	AfterClear:       600 * time.Millisecond,
	AfterType:        time.Second,
	AfterSubmit:      4 * time.Second,
	AfterContains:    2 * time.Second,
	AfterSearch:      4 * time.Second,
	AfterScrollToRow: 800 * time.Millisecond,
	AfterHover:       600 * time.Millisecond,
	AfterStatsOpen:   8 * time.Second,
	AfterTab:         2 * time.Second,
	AfterGeoTab:      6 * time.Second,
}

// Options configure a Driver
type Options struct {
	URL         string
	OutputDir   string
	Tabs        []string
	Zoom        float64
	Zooms       Zooms
	PageLoad    time.Duration
	NetworkIdle time.Duration
	CaptchaWait time.Duration
	Timings     Timings

	// OnCaptcha runs after the captcha wait, typically to persist the session
	OnCaptcha func(ctx context.Context) error
}

// Driver walks the dashboard on a single surface, one group at a time
type Driver struct {
	surface  screenshot.Surface
	capturer *screenshot.Capturer
	settler  *screenshot.Settler
	log      logrus.FieldLogger
	opts     Options
}

// NewDriver creates a Driver. capturer must be bound to s.
func NewDriver(s screenshot.Surface, capturer *screenshot.Capturer, log logrus.FieldLogger, opts Options) *Driver {
	return &Driver{
		surface:  s,
		capturer: capturer,
		settler:  capturer.Settler(),
		log:      log,
		opts:     opts,
	}
}

// OpenDashboard loads the campaign list, applies the page zoom and gives an
// operator the chance to solve a captcha
func (d *Driver) OpenDashboard(ctx context.Context) error {
	d.log.WithField("url", d.opts.URL).Info("opening dashboard")
	if err := d.surface.Navigate(ctx, d.opts.URL, d.opts.PageLoad); err != nil {
		return err
	}
	if _, err := d.settler.NetworkIdle(ctx, d.opts.NetworkIdle); err != nil {
		return err
	}
	if d.opts.Zoom > 0 && d.opts.Zoom != 1 {
		if err := d.surface.SetZoom(ctx, screenshot.FormatZoom(d.opts.Zoom)); err != nil {
			d.log.WithError(err).Warn("could not set page zoom")
		}
	}
	if err := d.settler.Pause(ctx, d.opts.Timings.AfterOpen); err != nil {
		return err
	}
	return d.handleCaptcha(ctx)
}

func (d *Driver) handleCaptcha(ctx context.Context) error {
	_, found, err := screenshot.Resolve(ctx, d.surface, captchaMarkers, screenshot.PickFirst)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.log.WithError(err).Debug("captcha check failed")
		return nil
	}
	if !found {
		return nil
	}
	d.log.WithField("wait", d.opts.CaptchaWait).Warn("captcha detected, solve it in the browser window")
	if err := d.settler.Pause(ctx, d.opts.CaptchaWait); err != nil {
		return err
	}
	if d.opts.OnCaptcha != nil {
		if err := d.opts.OnCaptcha(ctx); err != nil {
			d.log.WithError(err).Warn("could not save session after captcha")
		}
	}
	return nil
}

// Search types query into the campaign search box. It reports false when the
// box is missing or the interaction failed; the table may still show the row.
func (d *Driver) Search(ctx context.Context, query string) (bool, error) {
	log := d.log.WithField("query", query)
	input, found, err := screenshot.Resolve(ctx, d.surface, searchInputs, screenshot.PickFirst)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		log.WithError(err).Error("search failed")
		return false, nil
	}
	if !found {
		log.Error("search input not found, continuing without search")
		return false, nil
	}
	log.WithField("selector", input.Selector.String()).Debug("search input found")

	t := d.opts.Timings
	steps := []func() error{
		func() error { return d.surface.Click(ctx, input) },
		func() error { return d.settler.Pause(ctx, t.AfterFocus) },
		func() error { return d.surface.Fill(ctx, input, "") },
		func() error { return d.settler.Pause(ctx, t.AfterClear) },
		func() error { return d.surface.Fill(ctx, input, query) },
		func() error { return d.settler.Pause(ctx, t.AfterType) },
		func() error { return d.surface.Press(ctx, screenshot.KeyEnter) },
		func() error { return d.settler.Pause(ctx, t.AfterSubmit) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			log.WithError(err).Error("search failed")
			return false, nil
		}
	}

	items, err := d.surface.Find(ctx, containsMenuItem)
	if err == nil && len(items) > 0 {
		if err := d.surface.Click(ctx, items[0]); err != nil {
			log.WithError(err).Warn("could not pick the 'contains' search mode")
		} else {
			log.Debug("picked the 'contains' search mode")
			if err := d.settler.Pause(ctx, t.AfterContains); err != nil {
				return false, err
			}
		}
	}
	return true, nil
}

// OpenDetailView opens the statistics of the row whose plan link contains
// rowMatch (case-insensitive). A missing row or statistics button is a hard
// error for this group.
func (d *Driver) OpenDetailView(ctx context.Context, rowMatch string) error {
	name := strings.ToUpper(rowMatch)
	log := d.log.WithField("plan", name)

	link, err := d.findPlanLink(ctx, name)
	if err != nil {
		return err
	}

	row := link
	for _, css := range rowContainers {
		el, ok, err := d.surface.Closest(ctx, link, css)
		if err != nil {
			return fmt.Errorf("locate row of %s: %w", name, err)
		}
		if ok {
			row = el
			break
		}
	}

	t := d.opts.Timings
	if err := d.surface.ScrollIntoView(ctx, row); err != nil {
		log.WithError(err).Warn("could not scroll to plan row")
	}
	if err := d.settler.Pause(ctx, t.AfterScrollToRow); err != nil {
		return err
	}
	// row actions only render while the row is hovered
	if err := d.surface.Hover(ctx, row); err != nil {
		log.WithError(err).Warn("could not hover plan row")
	}
	if err := d.settler.Pause(ctx, t.AfterHover); err != nil {
		return err
	}

	btn, found, err := d.findStatsButton(ctx, row)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%s: %w", name, ErrStatsButtonNotFound)
	}
	log.WithField("selector", btn.Selector.String()).Debug("statistics button found")
	if err := d.surface.Click(ctx, btn); err != nil {
		return fmt.Errorf("open statistics of %s: %w", name, err)
	}
	if err := d.settler.Pause(ctx, t.AfterStatsOpen); err != nil {
		return err
	}
	log.Info("statistics opened")
	return nil
}

func (d *Driver) findPlanLink(ctx context.Context, name string) (screenshot.Element, error) {
	for _, sel := range planLinks(name) {
		found, err := d.surface.Find(ctx, sel)
		if err != nil {
			return screenshot.Element{}, fmt.Errorf("find plan %s: %w", name, err)
		}
		if len(found) == 0 {
			continue
		}
		text, err := d.surface.Text(ctx, found[0])
		if err != nil {
			return screenshot.Element{}, fmt.Errorf("read plan link: %w", err)
		}
		if strings.Contains(strings.ToUpper(text), name) {
			d.log.WithFields(logrus.Fields{"plan": strings.TrimSpace(text), "selector": sel.String()}).Info("plan found")
			return found[0], nil
		}
	}
	return screenshot.Element{}, fmt.Errorf("%s: %w", name, ErrPlanNotFound)
}

// findStatsButton looks inside the row first, then anywhere on the page
func (d *Driver) findStatsButton(ctx context.Context, row screenshot.Element) (screenshot.Element, bool, error) {
	inRow := make([]screenshot.Selector, 0, len(statsButtons))
	onPage := make([]screenshot.Selector, 0, len(statsButtons))
	for _, css := range statsButtons {
		inRow = append(inRow, screenshot.CSS(css).In(row.Query()))
		onPage = append(onPage, screenshot.CSS(css))
	}
	for _, candidates := range [][]screenshot.Selector{inRow, onPage} {
		btn, found, err := screenshot.Resolve(ctx, d.surface, candidates, screenshot.PickFirst)
		if err != nil {
			return screenshot.Element{}, false, err
		}
		if found {
			return btn, true, nil
		}
	}
	return screenshot.Element{}, false, nil
}

// SwitchTab activates a statistics tab. It reports false when the tab does
// not exist for this campaign.
func (d *Driver) SwitchTab(ctx context.Context, tab string) (bool, error) {
	log := d.log.WithField("tab", tab)
	found, err := d.surface.Find(ctx, tabButton(tab))
	if err != nil {
		return false, fmt.Errorf("find tab %s: %w", tab, err)
	}
	if len(found) == 0 {
		log.Warn("tab not found, skipping")
		return false, nil
	}
	if err := d.surface.Click(ctx, found[0]); err != nil {
		return false, fmt.Errorf("open tab %s: %w", tab, err)
	}
	wait := d.opts.Timings.AfterTab
	if tab == TabGeo {
		wait = d.opts.Timings.AfterGeoTab
	}
	if err := d.settler.Pause(ctx, wait); err != nil {
		return false, err
	}
	log.Info("tab opened")
	return true, nil
}
