package screenshot

import (
	"context"
	"errors"
	"time"
)

// ErrSettleTimeout is returned by WaitNetworkIdle when the page kept loading
// past the deadline
var ErrSettleTimeout = errors.New("page did not settle before timeout")

// Element is a handle to a DOM node located by a Selector. Ref is stable for
// the lifetime of the node.
type Element struct {
	Ref      string
	Selector Selector
}

// Query returns a CSS query that addresses exactly this element
func (e Element) Query() string {
	return `[data-vkads-ref="` + e.Ref + `"]`
}

// Surface is the live page the capture logic renders from. It does not manage
// navigation flow, authentication or captchas; callers drive those.
type Surface interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error

	// Find returns visible matches of sel in DOM order
	Find(ctx context.Context, sel Selector) ([]Element, error)
	Closest(ctx context.Context, el Element, css string) (Element, bool, error)
	Text(ctx context.Context, el Element) (string, error)
	// Box reports ok=false when the element is detached or has no layout
	Box(ctx context.Context, el Element) (box BoundingBox, ok bool, err error)

	ScrollIntoView(ctx context.Context, el Element) error
	Click(ctx context.Context, el Element) error
	Hover(ctx context.Context, el Element) error
	Fill(ctx context.Context, el Element, value string) error
	Press(ctx context.Context, key string) error
	Evaluate(ctx context.Context, script string, res any) error

	Viewport(ctx context.Context) (Size, error)
	PageSize(ctx context.Context) (Size, error)
	Zoom(ctx context.Context) (string, error)
	SetZoom(ctx context.Context, zoom string) error
	WaitNetworkIdle(ctx context.Context, timeout time.Duration) error

	CaptureClip(ctx context.Context, clip ClipRegion) ([]byte, error)
	CaptureViewport(ctx context.Context) ([]byte, error)
	CaptureFullPage(ctx context.Context) ([]byte, error)
}

// KeyEnter is the key name accepted by Surface.Press for the Enter key
const KeyEnter = "Enter"
