package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/input"
	cdppage "github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/sirupsen/logrus"

	"vkads-report/config"
	"vkads-report/screenshot"
)

// Page is the single browser tab, exposed as a screenshot.Surface
type Page struct {
	ctx      context.Context
	viewport config.Viewport
	tracker  *requestTracker
	log      logrus.FieldLogger

	actionTimeout time.Duration
	// exec runs chromedp actions; nil means run
	exec func(ctx context.Context, actions ...chromedp.Action) error
}

// DefaultActionTimeout bounds element interactions unless SetActionTimeout
// says otherwise
const DefaultActionTimeout = 30 * time.Second

var _ screenshot.Surface = (*Page)(nil)

// run executes actions in the tab, bounded by the caller's ctx
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// interact runs actions that query the DOM by ref. chromedp retries those
// queries until the node shows up, so a node replaced by a re-render would
// otherwise block until ctx ends.
func (p *Page) interact(ctx context.Context, what string, el screenshot.Element, actions ...chromedp.Action) error {
	timeout := p.actionTimeout
	if timeout <= 0 {
		timeout = DefaultActionTimeout
	}
	actCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	exec := p.exec
	if exec == nil {
		exec = p.run
	}
	if err := exec(actCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s %s: %w", what, el.Selector, err)
	}
	return nil
}

// SetActionTimeout sets the budget of a single click or fill
func (p *Page) SetActionTimeout(d time.Duration) { p.actionTimeout = d }

// Context returns a context bound to the tab, for chromedp actions outside
// the Surface interface
func (p *Page) Context() context.Context { return p.ctx }

// Run executes raw chromedp actions in the tab
func (p *Page) Run(ctx context.Context, actions ...chromedp.Action) error {
	return p.run(ctx, actions...)
}

func awaitPromise(params *cdpruntime.EvaluateParams) *cdpruntime.EvaluateParams {
	return params.WithAwaitPromise(true)
}

// URL returns the address of the current document
func (p *Page) URL(ctx context.Context) (string, error) {
	var url string
	err := p.run(ctx, chromedp.Location(&url))
	return url, err
}

func (p *Page) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p.tracker.reset()
	p.log.WithField("url", url).Debug("navigating")
	if err := p.run(navCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (p *Page) Find(ctx context.Context, sel screenshot.Selector) ([]screenshot.Element, error) {
	var refs []string
	script := call(findScript, map[string]any{"css": sel.CSS, "text": sel.Text, "within": sel.Within, "attr": refAttr})
	if err := p.run(ctx, chromedp.Evaluate(script, &refs)); err != nil {
		return nil, err
	}
	out := make([]screenshot.Element, 0, len(refs))
	for _, ref := range refs {
		out = append(out, screenshot.Element{Ref: ref, Selector: sel})
	}
	return out, nil
}

func (p *Page) Closest(ctx context.Context, el screenshot.Element, css string) (screenshot.Element, bool, error) {
	var res struct {
		OK  bool   `json:"ok"`
		Ref string `json:"ref"`
	}
	script := call(closestScript, map[string]any{"q": el.Query(), "css": css, "attr": refAttr})
	if err := p.run(ctx, chromedp.Evaluate(script, &res)); err != nil {
		return screenshot.Element{}, false, err
	}
	if !res.OK {
		return screenshot.Element{}, false, nil
	}
	return screenshot.Element{Ref: res.Ref, Selector: screenshot.CSS(css)}, true, nil
}

func (p *Page) Text(ctx context.Context, el screenshot.Element) (string, error) {
	var text string
	err := p.run(ctx, chromedp.Evaluate(call(textScript, map[string]any{"q": el.Query()}), &text))
	return text, err
}

func (p *Page) Box(ctx context.Context, el screenshot.Element) (screenshot.BoundingBox, bool, error) {
	var res struct {
		OK bool `json:"ok"`
		screenshot.BoundingBox
	}
	if err := p.run(ctx, chromedp.Evaluate(call(boxScript, map[string]any{"q": el.Query()}), &res)); err != nil {
		return screenshot.BoundingBox{}, false, err
	}
	if !res.OK {
		return screenshot.BoundingBox{}, false, nil
	}
	return res.BoundingBox, true, nil
}

func (p *Page) ScrollIntoView(ctx context.Context, el screenshot.Element) error {
	var found bool
	return p.run(ctx, chromedp.Evaluate(call(scrollIntoViewScript, map[string]any{"q": el.Query()}), &found))
}

func (p *Page) Click(ctx context.Context, el screenshot.Element) error {
	return p.interact(ctx, "click", el, chromedp.Click(el.Query(), chromedp.ByQuery))
}

func (p *Page) Hover(ctx context.Context, el screenshot.Element) error {
	if err := p.ScrollIntoView(ctx, el); err != nil {
		return err
	}
	var pt struct {
		OK bool    `json:"ok"`
		X  float64 `json:"x"`
		Y  float64 `json:"y"`
	}
	if err := p.run(ctx, chromedp.Evaluate(call(pointScript, map[string]any{"q": el.Query()}), &pt)); err != nil {
		return err
	}
	if !pt.OK {
		return fmt.Errorf("hover %s: element is gone", el.Selector)
	}
	return p.run(ctx, chromedp.MouseEvent(input.MouseMoved, pt.X, pt.Y))
}

func (p *Page) Fill(ctx context.Context, el screenshot.Element, value string) error {
	q := el.Query()
	return p.interact(ctx, "fill", el,
		chromedp.Focus(q, chromedp.ByQuery),
		chromedp.SetValue(q, "", chromedp.ByQuery),
		chromedp.SendKeys(q, value, chromedp.ByQuery),
	)
}

func (p *Page) Press(ctx context.Context, key string) error {
	if key == screenshot.KeyEnter {
		key = kb.Enter
	}
	return p.run(ctx, chromedp.KeyEvent(key))
}

func (p *Page) Evaluate(ctx context.Context, script string, res any) error {
	return p.run(ctx, chromedp.Evaluate(script, res, awaitPromise))
}

func (p *Page) Viewport(ctx context.Context) (screenshot.Size, error) {
	var size screenshot.Size
	err := p.run(ctx, chromedp.Evaluate(viewportScript, &size))
	return size, err
}

func (p *Page) PageSize(ctx context.Context) (screenshot.Size, error) {
	var size screenshot.Size
	err := p.run(ctx, chromedp.Evaluate(pageSizeScript, &size))
	return size, err
}

func (p *Page) Zoom(ctx context.Context) (string, error) {
	var zoom string
	err := p.run(ctx, chromedp.Evaluate(zoomScript, &zoom))
	return zoom, err
}

func (p *Page) SetZoom(ctx context.Context, zoom string) error {
	var ok bool
	return p.run(ctx, chromedp.Evaluate(call(setZoomScript, map[string]any{"zoom": zoom}), &ok))
}

func (p *Page) WaitNetworkIdle(ctx context.Context, timeout time.Duration) error {
	err := p.tracker.wait(ctx, timeout)
	if err != nil && ctx.Err() == nil {
		p.log.WithField("pending", p.tracker.pending()).Debug("requests still in flight")
	}
	return err
}

func (p *Page) CaptureClip(ctx context.Context, clip screenshot.ClipRegion) ([]byte, error) {
	var buf []byte
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = cdppage.CaptureScreenshot().
			WithFormat(cdppage.CaptureScreenshotFormatPng).
			WithClip(&cdppage.Viewport{
				X:      float64(clip.X),
				Y:      float64(clip.Y),
				Width:  float64(clip.Width),
				Height: float64(clip.Height),
				Scale:  1,
			}).
			WithCaptureBeyondViewport(true).
			Do(ctx)
		return err
	}))
	return buf, err
}

func (p *Page) CaptureViewport(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := p.run(ctx, chromedp.CaptureScreenshot(&buf))
	return buf, err
}

// CaptureFullPage stretches the device metrics to the document size, captures,
// then puts the configured viewport back
func (p *Page) CaptureFullPage(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var size screenshot.Size
		if err := chromedp.Evaluate(pageSizeScript, &size).Do(ctx); err != nil {
			return err
		}
		width, height := int64(size.Width), int64(size.Height)
		if width < int64(p.viewport.Width) {
			width = int64(p.viewport.Width)
		}
		if err := emulation.SetDeviceMetricsOverride(width, height, 1, false).Do(ctx); err != nil {
			return err
		}
		defer emulation.SetDeviceMetricsOverride(int64(p.viewport.Width), int64(p.viewport.Height), 1, false).Do(ctx)

		var err error
		buf, err = cdppage.CaptureScreenshot().WithFormat(cdppage.CaptureScreenshotFormatPng).Do(ctx)
		return err
	}))
	return buf, err
}

// SetViewport resizes the emulated viewport, e.g. for post captures
func (p *Page) SetViewport(ctx context.Context, vp config.Viewport) error {
	if err := p.run(ctx, emulation.SetDeviceMetricsOverride(int64(vp.Width), int64(vp.Height), 1, false)); err != nil {
		return err
	}
	p.viewport = vp
	return nil
}
