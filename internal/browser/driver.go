package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
	"go.uber.org/zap"

	"github.com/andrelcx/wamon/internal/config"
)

// Driver wraps a headless Chromium instance with a single page attached.
// The rest of the system treats it as an opaque capability: navigate, wait,
// probe, evaluate. All script results pass through a typed decode step so
// loosely-shaped values never travel deeper than this package.
type Driver struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	logger   *zap.Logger
}

// Launch starts a headless browser with a fixed viewport and the given
// persistent profile directory, and opens a blank page. The launch is bounded
// by opts.LaunchTimeoutSec; exceeding it is a terminal ErrBrowserInit, not
// retried here.
func Launch(ctx context.Context, opts config.Browser, profileDir string, logger *zap.Logger) (*Driver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := time.Duration(opts.LaunchTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	type result struct {
		d   *Driver
		err error
	}
	ch := make(chan result, 1)

	go func() {
		d, err := launch(opts, profileDir, logger)
		ch <- result{d: d, err: err}
	}()

	// On timeout the launch goroutine may still complete; reap its browser
	// so the Chromium process does not leak.
	reap := func() {
		if res := <-ch; res.d != nil {
			_ = res.d.Close()
		}
	}

	select {
	case res := <-ch:
		return res.d, res.err
	case <-ctx.Done():
		go reap()
		return nil, fmt.Errorf("%w: %v", ErrBrowserInit, ctx.Err())
	case <-time.After(timeout):
		go reap()
		return nil, fmt.Errorf("%w: launch exceeded %s", ErrBrowserInit, timeout)
	}
}

func launch(opts config.Browser, profileDir string, logger *zap.Logger) (*Driver, error) {
	l := launcher.New().
		Headless(opts.Headless).
		UserDataDir(profileDir).
		Set("window-size", fmt.Sprintf("%d,%d", opts.WindowWidth, opts.WindowHeight)).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("disable-extensions").
		Set("disable-default-apps").
		Set("disable-translate").
		Set("disable-background-timer-throttling").
		Set("disable-renderer-backgrounding").
		Set("no-first-run").
		Set("no-default-browser-check")
	if opts.NoSandbox {
		l = l.NoSandbox(true)
	}
	if opts.BinPath != "" {
		l = l.Bin(opts.BinPath)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrowserInit, err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("%w: attach: %v", ErrBrowserInit, err)
	}

	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = b.Close()
		l.Kill()
		return nil, fmt.Errorf("%w: open page: %v", ErrBrowserInit, err)
	}

	logger.Info("browser launched", zap.String("profile", profileDir), zap.Bool("headless", opts.Headless))
	return &Driver{launcher: l, browser: b, page: page, logger: logger}, nil
}

// Navigate loads the given URL in the driver's page.
func (d *Driver) Navigate(ctx context.Context, url string) error {
	if err := d.page.Context(ctx).Navigate(url); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNavigation, url, err)
	}
	return nil
}

// WaitFor blocks until the selector appears or the timeout elapses.
func (d *Driver) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	_, err := d.page.Context(ctx).Timeout(timeout).Element(selector)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: waiting for %s", ErrTimeout, selector)
		}
		return fmt.Errorf("%w: %s: %v", ErrElementNotFound, selector, err)
	}
	return nil
}

// Has probes for a selector without waiting.
func (d *Driver) Has(selector string) bool {
	has, _, err := d.page.Has(selector)
	return err == nil && has
}

// Eval runs a page-level script (a JS function expression) and decodes the
// result into out. Pass nil out to discard the result.
func (d *Driver) Eval(ctx context.Context, js string, out any, args ...any) error {
	obj, err := d.page.Context(ctx).Eval(js, args...)
	if err != nil {
		return fmt.Errorf("evaluate script: %w", err)
	}
	if out == nil {
		return nil
	}
	return decodeValue(obj.Value, out)
}

// EvalOn runs a script against the first element matching selector, with
// `this` bound to the element. Missing elements are ErrElementNotFound.
func (d *Driver) EvalOn(ctx context.Context, selector, js string, out any) error {
	has, el, err := d.page.Context(ctx).Has(selector)
	if err != nil || !has {
		return fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	obj, err := el.Eval(js)
	if err != nil {
		return fmt.Errorf("evaluate on %s: %w", selector, err)
	}
	if out == nil {
		return nil
	}
	return decodeValue(obj.Value, out)
}

// Close releases the page and browser synchronously. The profile directory
// is left intact so the WhatsApp session survives the next launch.
func (d *Driver) Close() error {
	if d.page != nil {
		_ = d.page.Close()
	}
	var err error
	if d.browser != nil {
		err = d.browser.Close()
	}
	if d.launcher != nil {
		d.launcher.Kill()
	}
	d.logger.Info("browser released")
	return err
}

func decodeValue(v gson.JSON, out any) error {
	raw, err := json.Marshal(v.Val())
	if err != nil {
		return fmt.Errorf("%w: encode script result: %v", ErrElementNotFound, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: unexpected script result shape: %v", ErrElementNotFound, err)
	}
	return nil
}
