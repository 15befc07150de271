package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/pagefleet/pagefleet/internal/model"
	"github.com/pagefleet/pagefleet/pkg/logger"
	"github.com/pagefleet/pagefleet/pkg/ratelimit"
	"github.com/pagefleet/pagefleet/pkg/resilience"
)

// Config configures a ChromeDriver attaching to a shared Chrome instance
// over its remote-debug endpoint, the arrangement §5 describes: multiple
// role processes on the same host attach to one browser.
type Config struct {
	RemoteDebugURL string
	NavTimeout     time.Duration
	MaxNavPerSec   float64
}

type chromeContext struct {
	browserCtxID target.BrowserContextID
	ctx          context.Context
	cancel       context.CancelFunc
	tabs         map[TabID]*chromeTab
	mu           sync.Mutex
}

type chromeTab struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// ChromeDriver implements Driver over chromedp/cdproto against a single
// remote allocator. Navigation is wrapped in a circuit breaker and a token
// bucket limiter as a defensive cap alongside the caller's own pacing.
type ChromeDriver struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc

	mu       sync.Mutex
	contexts map[ContextID]*chromeContext
	counter  int

	navTimeout time.Duration
	limiter    *ratelimit.TokenBucketLimiter
	breaker    *resilience.CircuitBreaker
	log        logger.Logger
}

// NewChromeDriver returns a Driver bound to the remote-debug endpoint. It
// does not connect; the connection is made on the first browser call.
func NewChromeDriver(cfg Config, log logger.Logger) (*ChromeDriver, error) {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), cfg.RemoteDebugURL)

	breakerCfg := resilience.DefaultCircuitBreakerConfig("browser-nav")
	breakerCfg.MaxRequests = 1
	breaker := resilience.NewCircuitBreaker(breakerCfg)

	navTimeout := cfg.NavTimeout
	if navTimeout <= 0 {
		navTimeout = 45 * time.Second
	}

	return &ChromeDriver{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		contexts:    make(map[ContextID]*chromeContext),
		navTimeout:  navTimeout,
		limiter:     ratelimit.NewTokenBucketLimiter(cfg.MaxNavPerSec, 1),
		breaker:     breaker,
		log:         log,
	}, nil
}

func (d *ChromeDriver) nextID(prefix string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.counter++
	return fmt.Sprintf("%s-%d", prefix, d.counter)
}

func (d *ChromeDriver) OpenContext(ctx context.Context, opts ContextOptions) (ContextID, error) {
	tabCtx, cancel := chromedp.NewContext(d.allocCtx, chromedp.WithNewBrowserContext())

	// Force target attachment so BrowserContextID is populated.
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return "", fmt.Errorf("open browser context: %w", err)
	}

	bcID := chromedp.FromContext(tabCtx).BrowserContextID

	cid := ContextID(d.nextID("ctx"))
	cc := &chromeContext{
		browserCtxID: bcID,
		ctx:          tabCtx,
		cancel:       cancel,
		tabs:         make(map[TabID]*chromeTab),
	}

	d.mu.Lock()
	d.contexts[cid] = cc
	d.mu.Unlock()

	if opts.Proxy.Server != "" {
		d.log.Warn("per-context proxy requires a fresh allocator; configure proxy at driver construction", "contextId", cid)
	}

	if len(opts.Cookies) > 0 {
		if err := d.SetCookies(ctx, cid, opts.Cookies); err != nil {
			return cid, fmt.Errorf("seed cookies for new context: %w", err)
		}
	}

	return cid, nil
}

func (d *ChromeDriver) context(cid ContextID) (*chromeContext, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cc, ok := d.contexts[cid]
	if !ok {
		return nil, &ErrContextNotFound{ContextID: cid}
	}
	return cc, nil
}

// NewTab creates a tab in cid and fires a fire-and-forget navigation to url.
func (d *ChromeDriver) NewTab(ctx context.Context, cid ContextID, url string, timeout time.Duration) (TabID, error) {
	cc, err := d.context(cid)
	if err != nil {
		return "", err
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("navigation rate limit: %w", err)
	}

	createCtx, createCancel := context.WithTimeout(cc.ctx, 10*time.Second)
	defer createCancel()

	var targetID target.ID
	_, err = d.breaker.Execute(func() (interface{}, error) {
		id, terr := target.CreateTarget(url).WithBrowserContextID(cc.browserCtxID).Do(createCtx)
		targetID = id
		return nil, terr
	})
	if err != nil {
		return "", fmt.Errorf("create tab: %w", err)
	}

	tabCtx, tabCancel := chromedp.NewContext(cc.ctx, chromedp.WithTargetID(targetID))

	tid := TabID(d.nextID("tab"))
	cc.mu.Lock()
	cc.tabs[tid] = &chromeTab{ctx: tabCtx, cancel: tabCancel}
	cc.mu.Unlock()

	return tid, nil
}

func (d *ChromeDriver) tab(cid ContextID, tid TabID) (*chromeTab, error) {
	cc, err := d.context(cid)
	if err != nil {
		return nil, err
	}
	cc.mu.Lock()
	defer cc.mu.Unlock()
	t, ok := cc.tabs[tid]
	if !ok {
		return nil, &ErrTabNotFound{TabID: tid}
	}
	return t, nil
}

// findTab scans every known context for tid, used by callers (Product
// workers) that only hold a TabID discovered via ListTabs/TabURL scanning.
func (d *ChromeDriver) findTab(tid TabID) (ContextID, *chromeTab, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for cid, cc := range d.contexts {
		cc.mu.Lock()
		t, ok := cc.tabs[tid]
		cc.mu.Unlock()
		if ok {
			return cid, t, nil
		}
	}
	return "", nil, &ErrTabNotFound{TabID: tid}
}

func (d *ChromeDriver) ListContexts() []ContextID {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]ContextID, 0, len(d.contexts))
	for cid := range d.contexts {
		out = append(out, cid)
	}
	return out
}

func (d *ChromeDriver) ListTabs(cid ContextID) []TabID {
	cc, err := d.context(cid)
	if err != nil {
		return nil
	}
	cc.mu.Lock()
	defer cc.mu.Unlock()
	out := make([]TabID, 0, len(cc.tabs))
	for tid := range cc.tabs {
		out = append(out, tid)
	}
	return out
}

func (d *ChromeDriver) TabURL(ctx context.Context, tid TabID) (string, error) {
	_, t, err := d.findTab(tid)
	if err != nil {
		return "", err
	}
	var url string
	err = chromedp.Run(t.ctx, chromedp.Location(&url))
	if err != nil {
		return "", fmt.Errorf("tab url: %w", err)
	}
	return url, nil
}

func (d *ChromeDriver) CloseTab(ctx context.Context, tid TabID) error {
	cid, t, err := d.findTab(tid)
	if err != nil {
		if _, ok := err.(*ErrTabNotFound); ok {
			return nil // idempotent over already-closed tabs
		}
		return err
	}

	t.cancel()

	cc, cerr := d.context(cid)
	if cerr == nil {
		cc.mu.Lock()
		delete(cc.tabs, tid)
		cc.mu.Unlock()
	}
	return nil
}

func (d *ChromeDriver) CloseContext(ctx context.Context, cid ContextID) error {
	cc, err := d.context(cid)
	if err != nil {
		return nil // idempotent
	}

	cc.mu.Lock()
	for _, t := range cc.tabs {
		t.cancel()
	}
	cc.mu.Unlock()

	cc.cancel()

	d.mu.Lock()
	delete(d.contexts, cid)
	d.mu.Unlock()

	return nil
}

func (d *ChromeDriver) Evaluate(ctx context.Context, tid TabID, script string, out interface{}) error {
	_, t, err := d.findTab(tid)
	if err != nil {
		return err
	}
	evalCtx, cancel := context.WithTimeout(t.ctx, d.navTimeout)
	defer cancel()

	if err := chromedp.Run(evalCtx, chromedp.Evaluate(script, out)); err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	return nil
}

func (d *ChromeDriver) Cookies(ctx context.Context, cid ContextID) ([]model.Cookie, error) {
	cc, err := d.context(cid)
	if err != nil {
		return nil, err
	}

	var cdpCookies []*network.Cookie
	err = chromedp.Run(cc.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var aerr error
		cdpCookies, aerr = network.GetCookies().Do(ctx)
		return aerr
	}))
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}

	out := make([]model.Cookie, 0, len(cdpCookies))
	for _, c := range cdpCookies {
		out = append(out, model.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  int64(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		})
	}
	return out, nil
}

func (d *ChromeDriver) SetCookies(ctx context.Context, cid ContextID, cookies []model.Cookie) error {
	cc, err := d.context(cid)
	if err != nil {
		return err
	}

	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}
		if c.Expires > 0 {
			p.Expires = cdp.TimeSinceEpoch(time.Unix(c.Expires, 0))
		}
		params = append(params, p)
	}

	return chromedp.Run(cc.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return network.SetCookies(params).Do(ctx)
	}))
}

func (d *ChromeDriver) Close() error {
	d.mu.Lock()
	contexts := make([]*chromeContext, 0, len(d.contexts))
	for _, cc := range d.contexts {
		contexts = append(contexts, cc)
	}
	d.contexts = make(map[ContextID]*chromeContext)
	d.mu.Unlock()

	for _, cc := range contexts {
		cc.cancel()
	}

	d.allocCancel()
	return nil
}

// IsServiceUnavailable reports whether err represents the site's specific
// "service unavailable" response on the listing domain, used by the General
// worker's §4.4 edge case (sleep 5 min, retry) as opposed to an ordinary
// transient navigation failure.
func IsServiceUnavailable(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "503") || strings.Contains(err.Error(), "service unavailable")
}
