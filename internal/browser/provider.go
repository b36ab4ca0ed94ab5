// Package browser implements the document provider over a real Chromium
// instance driven through the DevTools protocol.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"
)

// Options holds browser launch settings.
type Options struct {
	// Headless disables the visible browser window.
	Headless bool

	// Bin overrides the Chromium binary; empty uses the launcher's default.
	Bin string

	// UserAgent overrides the default user agent string.
	UserAgent string

	// ViewportWidth and ViewportHeight set the emulated viewport.
	ViewportWidth  int
	ViewportHeight int

	// NavTimeout bounds every navigation.
	NavTimeout time.Duration
}

// Provider owns one browser instance and one page for the duration of a
// monitoring run.
type Provider struct {
	browser *rod.Browser
	page    *rod.Page
	opts    Options
	logger  *logrus.Logger
}

// New launches a browser and opens the working page.
func New(ctx context.Context, opts Options, logger *logrus.Logger) (*Provider, error) {
	if opts.ViewportWidth == 0 {
		opts.ViewportWidth = 1280
	}
	if opts.ViewportHeight == 0 {
		opts.ViewportHeight = 720
	}
	if opts.NavTimeout == 0 {
		opts.NavTimeout = 30 * time.Second
	}

	l := launcher.New().Headless(opts.Headless).NoSandbox(true)
	if opts.Bin != "" {
		l = l.Bin(opts.Bin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		b.Close() //nolint:errcheck
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             opts.ViewportWidth,
		Height:            opts.ViewportHeight,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		logger.WithError(err).Warn("Failed to set viewport")
	}

	if opts.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: opts.UserAgent}); err != nil {
			logger.WithError(err).Warn("Failed to set user agent")
		}
	}

	logger.WithField("headless", opts.Headless).Info("Browser launched")
	return &Provider{
		browser: b,
		page:    page,
		opts:    opts,
		logger:  logger,
	}, nil
}

// Navigate loads url on the working page and waits for the load event.
func (p *Provider) Navigate(ctx context.Context, url string) error {
	page := p.page.Context(ctx).Timeout(p.opts.NavTimeout)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("failed waiting for %s to load: %w", url, err)
	}
	return nil
}

// SetCredentialCookie injects an authentication cookie scoped to domain.
func (p *Provider) SetCredentialCookie(ctx context.Context, name, value, domain string) error {
	err := p.page.Context(ctx).SetCookies([]*proto.NetworkCookieParam{{
		Name:     name,
		Value:    value,
		Domain:   domain,
		Path:     "/",
		Secure:   true,
		HTTPOnly: true,
	}})
	if err != nil {
		return fmt.Errorf("failed to set cookie %s: %w", name, err)
	}
	return nil
}

// Evaluate runs js against the live page and decodes its JSON result into
// out. A nil out discards the result.
func (p *Provider) Evaluate(ctx context.Context, js string, out interface{}) error {
	res, err := p.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           js,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}
	if out == nil || res == nil || res.Value.Nil() {
		return nil
	}

	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal evaluation result: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode evaluation result: %w", err)
	}
	return nil
}

// IsUsable reports whether the browser still responds to the control
// connection.
func (p *Provider) IsUsable() bool {
	if p.browser == nil || p.page == nil {
		return false
	}
	_, err := p.browser.Version()
	return err == nil
}

// Close releases the page and the browser.
func (p *Provider) Close() error {
	if p.page != nil {
		if err := p.page.Close(); err != nil {
			p.logger.WithError(err).Debug("Failed to close page")
		}
		p.page = nil
	}
	if p.browser != nil {
		err := p.browser.Close()
		p.browser = nil
		return err
	}
	return nil
}
