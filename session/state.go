// Package session persists the authenticated browser state between runs in
// the storage-state JSON layout Playwright writes, so existing state files
// can be reused.
package session

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
)

// Cookie is a browser cookie. Expires is seconds since the epoch, -1 for a
// session cookie.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// Item is one localStorage entry
type Item struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Origin holds the localStorage of one origin
type Origin struct {
	Origin       string `json:"origin"`
	LocalStorage []Item `json:"localStorage"`
}

// State is everything needed to resume an authenticated session
type State struct {
	Cookies []Cookie `json:"cookies"`
	Origins []Origin `json:"origins"`
}

// Empty reports whether there is nothing to restore
func (s *State) Empty() bool {
	return s == nil || (len(s.Cookies) == 0 && len(s.Origins) == 0)
}

// SetOrigin replaces the localStorage recorded for o.Origin
func (s *State) SetOrigin(o Origin) {
	for i := range s.Origins {
		if s.Origins[i].Origin == o.Origin {
			s.Origins[i] = o
			return
		}
	}
	s.Origins = append(s.Origins, o)
}

// LocalStorage returns the entries recorded for origin
func (s *State) LocalStorage(origin string) []Item {
	for _, o := range s.Origins {
		if o.Origin == origin {
			return o.LocalStorage
		}
	}
	return nil
}

// OriginOf returns the scheme://host[:port] part of rawURL
func OriginOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%q is not an absolute URL", rawURL)
	}
	return u.Scheme + "://" + u.Host, nil
}

// FromNetwork converts a cookie reported by the browser
func FromNetwork(c *network.Cookie) Cookie {
	expires := c.Expires
	if c.Session {
		expires = -1
	}
	return Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Expires:  expires,
		HTTPOnly: c.HTTPOnly,
		Secure:   c.Secure,
		SameSite: c.SameSite.String(),
	}
}

// params builds the Network.setCookie call for c
func (c Cookie) params() *network.SetCookieParams {
	path := c.Path
	if path == "" {
		path = "/"
	}
	p := network.SetCookie(c.Name, c.Value).
		WithDomain(c.Domain).
		WithPath(path).
		WithHTTPOnly(c.HTTPOnly).
		WithSecure(c.Secure)
	if c.Expires > 0 {
		sec, frac := math.Modf(c.Expires)
		expires := cdp.TimeSinceEpoch(time.Unix(int64(sec), int64(frac*1e9)))
		p = p.WithExpires(&expires)
	}
	switch network.CookieSameSite(c.SameSite) {
	case network.CookieSameSiteStrict, network.CookieSameSiteLax, network.CookieSameSiteNone:
		p = p.WithSameSite(network.CookieSameSite(c.SameSite))
	}
	return p
}

// SetCookies installs every cookie of s in the browser
func SetCookies(s *State) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if s == nil {
			return nil
		}
		for _, c := range s.Cookies {
			if err := c.params().Do(ctx); err != nil {
				return fmt.Errorf("set cookie %s: %w", c.Name, err)
			}
		}
		return nil
	})
}

// SetLocalStorage writes the localStorage recorded for origin into the
// current document, which must already be on that origin
func SetLocalStorage(s *State, origin string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if s == nil {
			return nil
		}
		items := s.LocalStorage(origin)
		if len(items) == 0 {
			return nil
		}
		var n int
		return chromedp.Evaluate(localStorageSetter(items), &n).Do(ctx)
	})
}

// Capture reads the browser's cookies and the current origin's localStorage
// into s, keeping localStorage recorded for other origins
func Capture(s *State) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		cookies, err := storage.GetCookies().Do(ctx)
		if err != nil {
			return fmt.Errorf("read cookies: %w", err)
		}
		s.Cookies = s.Cookies[:0]
		for _, c := range cookies {
			s.Cookies = append(s.Cookies, FromNetwork(c))
		}

		var current Origin
		if err := chromedp.Evaluate(localStorageReader, &current).Do(ctx); err != nil {
			return fmt.Errorf("read localStorage: %w", err)
		}
		if current.Origin != "" && current.Origin != "null" {
			s.SetOrigin(current)
		}
		return nil
	})
}
