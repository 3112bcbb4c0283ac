// Package screenshottest provides an in-memory screenshot.Surface for tests.
package screenshottest

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"time"

	"vkads-report/screenshot"
)

// Node is a fake DOM element
type Node struct {
	Box   screenshot.BoundingBox
	NoBox bool
	Text  string
	// Closest maps a CSS ancestor query to the ref of the matching ancestor
	Closest map[string]string
}

// Capture records one capture call
type Capture struct {
	Kind string // "clip", "viewport" or "full_page"
	Clip screenshot.ClipRegion
}

// Surface is a scripted page. Selectors only match what was registered with
// Add or Alias.
type Surface struct {
	Nodes   map[string]*Node
	Matches map[string][]string

	PageExtent   screenshot.Size
	ViewportSize screenshot.Size
	ZoomValue    string
	ZoomHistory  []string

	FindErr      error
	IdleErr      error
	ClipErr      error
	FullPageErr  error
	ViewportErr  error
	SetZoomErr   error
	NavigateErr  error
	CaptureBytes []byte

	Captures    []Capture
	Navigations []string
	Clicks      []string
	Hovers      []string
	Scrolls     []string
	Scripts     []string
	Filled      map[string]string
	Pressed     []string

	OnClick    func(s *Surface, el screenshot.Element)
	OnNavigate func(s *Surface, url string)
	OnPress    func(s *Surface, key string)

	seq int
}

// New returns an empty 1920x1080 page
func New() *Surface {
	return &Surface{
		Nodes:        map[string]*Node{},
		Matches:      map[string][]string{},
		PageExtent:   screenshot.Size{Width: 1920, Height: 3000},
		ViewportSize: screenshot.Size{Width: 1920, Height: 1080},
		Filled:       map[string]string{},
		CaptureBytes: TinyPNG(),
	}
}

// Add registers nodes as matches of sel and returns their refs
func (s *Surface) Add(sel screenshot.Selector, nodes ...Node) []string {
	refs := make([]string, 0, len(nodes))
	for i := range nodes {
		s.seq++
		ref := fmt.Sprintf("n%d", s.seq)
		n := nodes[i]
		s.Nodes[ref] = &n
		refs = append(refs, ref)
	}
	s.Matches[sel.String()] = append(s.Matches[sel.String()], refs...)
	return refs
}

// Alias makes existing nodes match sel as well
func (s *Surface) Alias(sel screenshot.Selector, refs ...string) {
	s.Matches[sel.String()] = append(s.Matches[sel.String()], refs...)
}

// Clear drops every registered match, as a navigation would
func (s *Surface) Clear() {
	s.Matches = map[string][]string{}
}

func (s *Surface) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	s.Navigations = append(s.Navigations, url)
	if s.NavigateErr != nil {
		return s.NavigateErr
	}
	if s.OnNavigate != nil {
		s.OnNavigate(s, url)
	}
	return ctx.Err()
}

func (s *Surface) Find(ctx context.Context, sel screenshot.Selector) ([]screenshot.Element, error) {
	if s.FindErr != nil {
		return nil, s.FindErr
	}
	var out []screenshot.Element
	for _, ref := range s.Matches[sel.String()] {
		out = append(out, screenshot.Element{Ref: ref, Selector: sel})
	}
	return out, ctx.Err()
}

func (s *Surface) Closest(ctx context.Context, el screenshot.Element, css string) (screenshot.Element, bool, error) {
	n, ok := s.Nodes[el.Ref]
	if !ok {
		return screenshot.Element{}, false, nil
	}
	ref, ok := n.Closest[css]
	if !ok {
		return screenshot.Element{}, false, nil
	}
	return screenshot.Element{Ref: ref, Selector: screenshot.CSS(css)}, true, nil
}

func (s *Surface) Text(_ context.Context, el screenshot.Element) (string, error) {
	if n, ok := s.Nodes[el.Ref]; ok {
		return n.Text, nil
	}
	return "", nil
}

func (s *Surface) Box(_ context.Context, el screenshot.Element) (screenshot.BoundingBox, bool, error) {
	n, ok := s.Nodes[el.Ref]
	if !ok || n.NoBox || n.Box.Empty() {
		return screenshot.BoundingBox{}, false, nil
	}
	return n.Box, true, nil
}

func (s *Surface) ScrollIntoView(_ context.Context, el screenshot.Element) error {
	s.Scrolls = append(s.Scrolls, el.Ref)
	return nil
}

func (s *Surface) Click(_ context.Context, el screenshot.Element) error {
	s.Clicks = append(s.Clicks, el.Ref)
	if s.OnClick != nil {
		s.OnClick(s, el)
	}
	return nil
}

func (s *Surface) Hover(_ context.Context, el screenshot.Element) error {
	s.Hovers = append(s.Hovers, el.Ref)
	return nil
}

func (s *Surface) Fill(_ context.Context, el screenshot.Element, value string) error {
	s.Filled[el.Ref] = value
	return nil
}

func (s *Surface) Press(_ context.Context, key string) error {
	s.Pressed = append(s.Pressed, key)
	if s.OnPress != nil {
		s.OnPress(s, key)
	}
	return nil
}

func (s *Surface) Evaluate(_ context.Context, script string, _ any) error {
	s.Scripts = append(s.Scripts, script)
	return nil
}

func (s *Surface) Viewport(context.Context) (screenshot.Size, error) {
	return s.ViewportSize, nil
}

func (s *Surface) PageSize(context.Context) (screenshot.Size, error) {
	return s.PageExtent, nil
}

func (s *Surface) Zoom(context.Context) (string, error) {
	return s.ZoomValue, nil
}

func (s *Surface) SetZoom(_ context.Context, zoom string) error {
	if s.SetZoomErr != nil {
		return s.SetZoomErr
	}
	s.ZoomValue = zoom
	s.ZoomHistory = append(s.ZoomHistory, zoom)
	return nil
}

func (s *Surface) WaitNetworkIdle(ctx context.Context, _ time.Duration) error {
	if s.IdleErr != nil {
		return s.IdleErr
	}
	return ctx.Err()
}

func (s *Surface) CaptureClip(_ context.Context, clip screenshot.ClipRegion) ([]byte, error) {
	if s.ClipErr != nil {
		return nil, s.ClipErr
	}
	s.Captures = append(s.Captures, Capture{Kind: "clip", Clip: clip})
	return s.CaptureBytes, nil
}

func (s *Surface) CaptureViewport(context.Context) ([]byte, error) {
	if s.ViewportErr != nil {
		return nil, s.ViewportErr
	}
	s.Captures = append(s.Captures, Capture{Kind: "viewport"})
	return s.CaptureBytes, nil
}

func (s *Surface) CaptureFullPage(context.Context) ([]byte, error) {
	if s.FullPageErr != nil {
		return nil, s.FullPageErr
	}
	s.Captures = append(s.Captures, Capture{Kind: "full_page"})
	return s.CaptureBytes, nil
}

// NoSleep is a screenshot.SleepFunc that returns immediately
func NoSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

// TinyPNG returns a valid 200x100 white PNG
func TinyPNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 200, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 200; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

var _ screenshot.Surface = (*Surface)(nil)
