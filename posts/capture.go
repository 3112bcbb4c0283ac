package posts

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"vkads-report/screenshot"
)

// postTarget is the post body; pages without one are captured whole
var postTarget = screenshot.CaptureTarget{
	Name: "post",
	Element: &screenshot.Anchor{
		Name: "post",
		Candidates: []screenshot.Selector{
			screenshot.CSS(".Post"),
			screenshot.CSS(".wall_post_text"),
			screenshot.CSS(".post"),
		},
	},
}

// Failure records a post that could not be captured
type Failure struct {
	Index int
	URL   string
	Err   error
}

// CaptureOptions tune post captures
type CaptureOptions struct {
	PageLoad    time.Duration
	NetworkIdle time.Duration
	Delay       time.Duration
	BrowserBar  bool
}

// Capturer screenshots posts one after another on a single surface
type Capturer struct {
	surface  screenshot.Surface
	capturer *screenshot.Capturer
	log      logrus.FieldLogger
	opts     CaptureOptions
}

// NewCapturer creates a Capturer. capturer must be bound to s.
func NewCapturer(s screenshot.Surface, capturer *screenshot.Capturer, log logrus.FieldLogger, opts CaptureOptions) *Capturer {
	if opts.NetworkIdle == 0 {
		opts.NetworkIdle = 1500 * time.Millisecond
	}
	return &Capturer{surface: s, capturer: capturer, log: log, opts: opts}
}

// FileName is the output name of the n-th post, counting from 1
func FileName(n int) string {
	return fmt.Sprintf("post_%d.png", n)
}

// CaptureAll writes post_<n>.png into dir for every post and records the
// path on the post. Failed posts are reported and skipped.
func (c *Capturer) CaptureAll(ctx context.Context, posts []Post, dir string) []Failure {
	var failures []Failure
	for i := range posts {
		if ctx.Err() != nil {
			failures = append(failures, Failure{Index: i, URL: posts[i].URL, Err: ctx.Err()})
			continue
		}
		path := filepath.Join(dir, FileName(i+1))
		log := c.log.WithFields(logrus.Fields{
			"progress": fmt.Sprintf("%d/%d", i+1, len(posts)),
			"url":      posts[i].URL,
		})
		log.Info("capturing post")

		if err := c.capture(ctx, posts[i].URL, path); err != nil {
			log.WithError(err).Error("post capture failed")
			failures = append(failures, Failure{Index: i, URL: posts[i].URL, Err: err})
			continue
		}
		posts[i].Screenshot = path
	}
	c.log.WithFields(logrus.Fields{
		"succeeded": len(posts) - len(failures),
		"failed":    len(failures),
	}).Info("post batch finished")
	return failures
}

func (c *Capturer) capture(ctx context.Context, url, path string) error {
	if err := c.surface.Navigate(ctx, url, c.opts.PageLoad); err != nil {
		return err
	}
	settler := c.capturer.Settler()
	if _, err := settler.NetworkIdle(ctx, c.opts.NetworkIdle); err != nil {
		return err
	}
	if err := settler.Pause(ctx, c.opts.Delay); err != nil {
		return err
	}
	if _, err := c.capturer.Capture(ctx, postTarget, path); err != nil {
		return err
	}
	if c.opts.BrowserBar {
		if err := screenshot.AddBrowserBar(path, url); err != nil {
			return fmt.Errorf("draw browser bar: %w", err)
		}
	}
	return nil
}
