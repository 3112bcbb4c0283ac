package screenshot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// Tier is one of the capture strategies, tried in order
type Tier int

const (
	TierElement Tier = iota + 1
	TierUnionClip
	TierFullPage
)

func (t Tier) String() string {
	switch t {
	case TierElement:
		return "element"
	case TierUnionClip:
		return "union_clip"
	case TierFullPage:
		return "full_page"
	default:
		return "none"
	}
}

// Poll describes a marker wait performed before measuring
type Poll struct {
	Markers []Selector
	Policy  PollPolicy
}

// CaptureTarget describes one logical region of a page and how to settle it
// before capture. Element drives the element tier, Anchors the union-clip
// tier; a target with neither is captured as a full page.
type CaptureTarget struct {
	Name    string
	Element *Anchor
	Anchors []Anchor
	Padding float64

	// Zoom is applied for the duration of the capture; 0 and 1 leave it alone
	Zoom           float64
	ScrollToTop    bool
	ScrollToBottom bool

	RequiresNetworkIdle bool
	NetworkIdleTimeout  time.Duration
	WaitFor             *Poll
	SettleDelay         time.Duration
	Refresh             string
	RefreshDelay        time.Duration
}

// CaptureResult records where a capture landed and which tier produced it
type CaptureResult struct {
	OutputPath string
	Success    bool
	Tier       Tier
}

// Delays are the fixed pauses after DOM mutations
type Delays struct {
	ZoomSettle   time.Duration
	ScrollSettle time.Duration
	AnchorSettle time.Duration
	LazyLoad     time.Duration
}

// DefaultDelays mirror what the dashboard needs to re-layout
var DefaultDelays = Delays{
	ZoomSettle:   time.Second,
	ScrollSettle: 600 * time.Millisecond,
	AnchorSettle: 500 * time.Millisecond,
	LazyLoad:     400 * time.Millisecond,
}

const scrollToBottomScript = `(async step => {
	for (let y = 0; y < document.body.scrollHeight; y += step) {
		window.scrollTo({top: y, behavior: 'instant'});
		await new Promise(r => setTimeout(r, 120));
	}
	window.scrollTo({top: document.body.scrollHeight, behavior: 'instant'});
	return true;
})(700)`

// Capturer runs the capture strategy against a single Surface
type Capturer struct {
	surface Surface
	settler *Settler
	log     logrus.FieldLogger
	delays  Delays
	sleep   SleepFunc
}

// Option configures a Capturer
type Option func(*Capturer)

// WithSleep replaces the sleep used for every pause and poll
func WithSleep(sleep SleepFunc) Option {
	return func(c *Capturer) { c.sleep = sleep }
}

// WithDelays overrides DefaultDelays
func WithDelays(d Delays) Option {
	return func(c *Capturer) { c.delays = d }
}

// NewCapturer creates a Capturer bound to s
func NewCapturer(s Surface, log logrus.FieldLogger, opts ...Option) *Capturer {
	c := &Capturer{
		surface: s,
		log:     log,
		delays:  DefaultDelays,
		sleep:   Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.settler = NewSettler(s, log, c.sleep)
	return c
}

// Settler returns the waiter sharing this capturer's surface and sleep
func (c *Capturer) Settler() *Settler { return c.settler }

// Capture settles the page, walks the tiers and writes exactly one PNG to
// path. Unexpected errors in the element and union tiers are logged and
// resolved with a full-page capture; only a failing full-page capture is
// returned.
func (c *Capturer) Capture(ctx context.Context, target CaptureTarget, path string) (CaptureResult, error) {
	log := c.log.WithField("target", target.Name)
	res := CaptureResult{OutputPath: path}

	if target.Zoom > 0 && target.Zoom != 1 {
		restore, err := c.applyZoom(ctx, log, target.Zoom)
		if err != nil {
			log.WithError(err).Warn("could not apply zoom, capturing at current zoom")
		} else {
			defer restore()
		}
	}

	if err := c.prepare(ctx, log, target); err != nil {
		return res, err
	}

	data, tier, err := c.runTiers(ctx, log, target)
	if err != nil {
		return res, fmt.Errorf("capture %s: %w", target.Name, err)
	}
	if err := writeFile(path, data); err != nil {
		return res, fmt.Errorf("save %s: %w", target.Name, err)
	}

	res.Success = true
	res.Tier = tier
	log.WithFields(logrus.Fields{"tier": tier.String(), "path": path}).Info("screenshot saved")
	return res, nil
}

// FormatZoom renders a zoom factor the way style.zoom expects it
func FormatZoom(zoom float64) string {
	return strconv.FormatFloat(zoom, 'f', -1, 64)
}

// applyZoom sets the page zoom and returns the function that puts the
// original value back
func (c *Capturer) applyZoom(ctx context.Context, log logrus.FieldLogger, zoom float64) (func(), error) {
	original, err := c.surface.Zoom(ctx)
	if err != nil {
		return nil, fmt.Errorf("read zoom: %w", err)
	}
	restore := func() { c.restoreZoom(ctx, log, original) }

	if err := c.surface.SetZoom(ctx, FormatZoom(zoom)); err != nil {
		restore()
		return nil, fmt.Errorf("set zoom: %w", err)
	}
	log.WithFields(logrus.Fields{"zoom": zoom, "original": original}).Debug("zoom applied")
	if err := c.sleep(ctx, c.delays.ZoomSettle); err != nil {
		restore()
		return nil, err
	}
	return restore, nil
}

func (c *Capturer) restoreZoom(ctx context.Context, log logrus.FieldLogger, original string) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.surface.SetZoom(rctx, original); err != nil {
		log.WithError(err).Error("could not restore zoom")
	}
}

func (c *Capturer) prepare(ctx context.Context, log logrus.FieldLogger, t CaptureTarget) error {
	if t.ScrollToTop {
		if err := c.surface.Evaluate(ctx, `window.scrollTo(0, 0)`, nil); err != nil {
			log.WithError(err).Debug("scroll to top failed")
		}
		if err := c.sleep(ctx, c.delays.ScrollSettle); err != nil {
			return err
		}
	}
	if t.RequiresNetworkIdle {
		if _, err := c.settler.NetworkIdle(ctx, t.NetworkIdleTimeout); err != nil {
			return err
		}
	}
	if t.WaitFor != nil {
		if _, _, err := c.settler.Poll(ctx, t.WaitFor.Markers, t.WaitFor.Policy); err != nil {
			return err
		}
	}
	if err := c.sleep(ctx, t.SettleDelay); err != nil {
		return err
	}
	if t.Refresh != "" {
		if err := c.surface.Evaluate(ctx, t.Refresh, nil); err != nil {
			log.WithError(err).Debug("refresh script failed")
		}
		if err := c.sleep(ctx, t.RefreshDelay); err != nil {
			return err
		}
	}
	return nil
}

func (c *Capturer) runTiers(ctx context.Context, log logrus.FieldLogger, t CaptureTarget) ([]byte, Tier, error) {
	tiers := []struct {
		tier Tier
		run  func() ([]byte, bool, error)
	}{
		{TierElement, func() ([]byte, bool, error) { return c.elementTier(ctx, log, t) }},
		{TierUnionClip, func() ([]byte, bool, error) { return c.unionTier(ctx, log, t) }},
	}
	for _, tt := range tiers {
		data, ok, err := tt.run()
		if err != nil {
			if ctx.Err() != nil {
				return nil, tt.tier, ctx.Err()
			}
			log.WithError(err).WithField("tier", tt.tier.String()).Error("capture failed, falling back to full page")
			break
		}
		if ok {
			return data, tt.tier, nil
		}
	}
	data, err := c.fullPageTier(ctx, log, t)
	return data, TierFullPage, err
}

func (c *Capturer) elementTier(ctx context.Context, log logrus.FieldLogger, t CaptureTarget) ([]byte, bool, error) {
	if t.Element == nil {
		return nil, false, nil
	}
	el, found, err := t.Element.resolve(ctx, c.surface)
	if err != nil {
		return nil, false, err
	}
	if !found {
		log.WithField("missing_anchors", []string{t.Element.Name}).Warn("element not found")
		return nil, false, nil
	}
	log.WithFields(logrus.Fields{"anchor": t.Element.Name, "selector": el.Selector.String()}).Debug("element found")

	if err := c.surface.ScrollIntoView(ctx, el); err != nil {
		return nil, false, err
	}
	if err := c.sleep(ctx, c.delays.AnchorSettle); err != nil {
		return nil, false, err
	}
	box, ok, err := c.surface.Box(ctx, el)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		log.WithField("anchor", t.Element.Name).Warn("element has no bounding box")
		return nil, false, nil
	}
	return c.clipCapture(ctx, log, box, t.Padding)
}

func (c *Capturer) unionTier(ctx context.Context, log logrus.FieldLogger, t CaptureTarget) ([]byte, bool, error) {
	if len(t.Anchors) == 0 {
		return nil, false, nil
	}
	elements := make([]Element, 0, len(t.Anchors))
	var missing []string
	for _, a := range t.Anchors {
		el, found, err := a.resolve(ctx, c.surface)
		if err != nil {
			return nil, false, err
		}
		if !found {
			missing = append(missing, a.Name)
			continue
		}
		elements = append(elements, el)
	}
	if len(missing) > 0 {
		log.WithField("missing_anchors", missing).Warn("anchors not found")
		return nil, false, nil
	}

	for _, el := range elements {
		if err := c.surface.ScrollIntoView(ctx, el); err != nil {
			return nil, false, err
		}
	}
	if err := c.sleep(ctx, c.delays.AnchorSettle); err != nil {
		return nil, false, err
	}

	boxes := make([]BoundingBox, 0, len(elements))
	for i, el := range elements {
		box, ok, err := c.surface.Box(ctx, el)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			log.WithField("anchor", t.Anchors[i].Name).Warn("anchor has no bounding box")
			return nil, false, nil
		}
		boxes = append(boxes, box)
	}
	union, _ := Union(boxes...)
	return c.clipCapture(ctx, log, union, t.Padding)
}

func (c *Capturer) clipCapture(ctx context.Context, log logrus.FieldLogger, box BoundingBox, padding float64) ([]byte, bool, error) {
	extent, err := c.surface.PageSize(ctx)
	if err != nil {
		return nil, false, err
	}
	clip, err := Clip(box, padding, extent)
	if errors.Is(err, ErrDegenerateClip) {
		log.WithError(err).Warn("clip region is empty")
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	log.WithField("clip", clip.String()).Debug("capturing clip")
	data, err := c.surface.CaptureClip(ctx, clip)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (c *Capturer) fullPageTier(ctx context.Context, log logrus.FieldLogger, t CaptureTarget) ([]byte, error) {
	if t.ScrollToBottom {
		var done bool
		if err := c.surface.Evaluate(ctx, scrollToBottomScript, &done); err != nil {
			log.WithError(err).Debug("scroll to bottom failed")
		}
		if err := c.sleep(ctx, c.delays.LazyLoad); err != nil {
			return nil, err
		}
	}
	return c.surface.CaptureFullPage(ctx)
}
