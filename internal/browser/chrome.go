package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

const idlePoll = 50 * time.Millisecond

// Options configures a headless Chrome instance.
type Options struct {
	Headless      bool
	ExecPath      string        // empty = look up chrome on PATH
	SlowMotion    time.Duration // pause before every input action
	ActionTimeout time.Duration
	IdleQuiet     time.Duration
	Logger        *slog.Logger
}

// Chrome drives one tab of a Chrome process started by chromedp.
type Chrome struct {
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	opts        Options
	net         *netTracker
	logger      *slog.Logger
}

// Launch starts Chrome and opens a blank tab with network tracking enabled.
// The browser outlives ctx cancellation; call Close to release it.
func Launch(ctx context.Context, opts Options) (*Chrome, error) {
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = 30 * time.Second
	}
	if opts.IdleQuiet <= 0 {
		opts.IdleQuiet = 500 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts, chromedp.Flag("headless", opts.Headless))
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	tracker := newNetTracker(time.Now)
	chromedp.ListenTarget(tabCtx, tracker.handle)

	// The first Run allocates the browser and binds its lifetime to the
	// context it is given, so startup is bounded by a timer on tabCtx.
	startTimer := time.AfterFunc(opts.ActionTimeout, cancelTab)
	err := chromedp.Run(tabCtx, network.Enable())
	startTimer.Stop()
	if err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("browser: start chrome: %w", err)
	}
	logger.Debug("browser started", "headless", opts.Headless)

	return &Chrome{
		ctx:         tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		opts:        opts,
		net:         tracker,
		logger:      logger,
	}, nil
}

// Close shuts the browser down and releases the allocator.
func (c *Chrome) Close() error {
	err := chromedp.Cancel(c.ctx)
	c.cancelTab()
	c.cancelAlloc()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("browser: close: %w", err)
	}
	return nil
}

// run executes actions on the tab, bounded by the action timeout and by ctx.
func (c *Chrome) run(ctx context.Context, actions ...chromedp.Action) error {
	actx, cancel := context.WithTimeout(c.ctx, c.opts.ActionTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(actx, actions...)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrNavigationTimeout, err)
	}
	return err
}

func (c *Chrome) pause(ctx context.Context) error {
	if c.opts.SlowMotion <= 0 {
		return nil
	}
	t := time.NewTimer(c.opts.SlowMotion)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Chrome) Navigate(ctx context.Context, url string) error {
	if err := c.pause(ctx); err != nil {
		return err
	}
	if err := c.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (c *Chrome) Fill(ctx context.Context, sel, value string) error {
	if err := c.pause(ctx); err != nil {
		return err
	}
	err := c.run(ctx,
		chromedp.WaitVisible(sel, chromedp.BySearch),
		chromedp.Clear(sel, chromedp.BySearch),
		chromedp.SendKeys(sel, value, chromedp.BySearch),
	)
	if err != nil {
		return fmt.Errorf("fill %s: %w", sel, err)
	}
	return nil
}

func (c *Chrome) Click(ctx context.Context, sel string) error {
	if err := c.pause(ctx); err != nil {
		return err
	}
	if err := c.run(ctx, chromedp.Click(sel, chromedp.BySearch, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click %s: %w", sel, err)
	}
	return nil
}

func (c *Chrome) WaitIdle(ctx context.Context) error {
	if err := c.run(ctx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait for document: %w", err)
	}

	deadline := time.NewTimer(c.opts.ActionTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(idlePoll)
	defer ticker.Stop()

	for {
		if c.net.idleFor() >= c.opts.IdleQuiet {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w after %s (%d requests in flight)",
				ErrNavigationTimeout, c.opts.ActionTimeout, c.net.inflight())
		case <-ticker.C:
		}
	}
}

type lookupResult struct {
	Found   bool   `json:"found"`
	Visible bool   `json:"visible"`
	Text    string `json:"text"`
}

const lookupJS = `(() => {
	const sel = %s, xpath = %t;
	const el = xpath
		? document.evaluate(sel, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue
		: document.querySelector(sel);
	if (!el) return {found: false, visible: false, text: ""};
	const r = el.getBoundingClientRect();
	const st = window.getComputedStyle(el);
	return {
		found: true,
		visible: r.width > 0 && r.height > 0 && st.visibility !== "hidden" && st.display !== "none",
		text: el.innerText || el.textContent || ""
	};
})()`

func (c *Chrome) lookup(ctx context.Context, sel string) (lookupResult, error) {
	var res lookupResult
	lit, err := json.Marshal(sel)
	if err != nil {
		return res, err
	}
	if err := c.run(ctx, chromedp.Evaluate(fmt.Sprintf(lookupJS, lit, IsXPath(sel)), &res)); err != nil {
		return res, fmt.Errorf("lookup %s: %w", sel, err)
	}
	return res, nil
}

func (c *Chrome) Visible(ctx context.Context, sel string) (bool, error) {
	res, err := c.lookup(ctx, sel)
	if err != nil {
		return false, err
	}
	return res.Visible, nil
}

func (c *Chrome) Text(ctx context.Context, sel string) (string, error) {
	res, err := c.lookup(ctx, sel)
	if err != nil {
		return "", err
	}
	if !res.Found {
		return "", fmt.Errorf("%w: %s", ErrNotFound, sel)
	}
	return res.Text, nil
}

const rowsJS = `(() => {
	const rowSel = %s, cellSel = %s, xpath = %t;
	let rows = [];
	if (xpath) {
		const snap = document.evaluate(rowSel, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
		for (let i = 0; i < snap.snapshotLength; i++) rows.push(snap.snapshotItem(i));
	} else {
		rows = Array.from(document.querySelectorAll(rowSel));
	}
	return rows.map(r => Array.from(r.querySelectorAll(cellSel)).map(c => c.innerText || c.textContent || ""));
})()`

func (c *Chrome) Rows(ctx context.Context, rowSel, cellSel string) ([][]string, error) {
	rowLit, err := json.Marshal(rowSel)
	if err != nil {
		return nil, err
	}
	cellLit, err := json.Marshal(cellSel)
	if err != nil {
		return nil, err
	}
	var rows [][]string
	if err := c.run(ctx, chromedp.Evaluate(fmt.Sprintf(rowsJS, rowLit, cellLit, IsXPath(rowSel)), &rows)); err != nil {
		return nil, fmt.Errorf("read rows %s: %w", rowSel, err)
	}
	return rows, nil
}
