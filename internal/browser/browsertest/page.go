// Package browsertest provides an in-memory browser.Page for tests.
package browsertest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/tinytelemetry/meetreport/internal/browser"
)

// Page is a scriptable fake page. Reads are served from the Texts, Visibles
// and Table maps; clicks can run hooks that mutate them. Every call is
// recorded in order as "<op> <arg>".
type Page struct {
	mu       sync.Mutex
	texts    map[string]string
	visibles map[string]bool
	table    map[string][][]string
	hooks    map[string]func(p *Page) error
	errs     map[string]error
	calls    []string
	closed   int
}

var _ browser.Instance = (*Page)(nil)

// New returns an empty page.
func New() *Page {
	return &Page{
		texts:    make(map[string]string),
		visibles: make(map[string]bool),
		table:    make(map[string][][]string),
		hooks:    make(map[string]func(p *Page) error),
		errs:     make(map[string]error),
	}
}

// SetText makes sel readable with the given text.
func (p *Page) SetText(sel, text string) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.texts[sel] = text
	return p
}

// SetVisible marks sel as visible or hidden.
func (p *Page) SetVisible(sel string, v bool) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visibles[sel] = v
	return p
}

// SetRows sets the cells returned for rowSel.
func (p *Page) SetRows(rowSel string, rows [][]string) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.table[rowSel] = rows
	return p
}

// OnClick registers a hook run after sel is clicked.
func (p *Page) OnClick(sel string, fn func(p *Page) error) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hooks["click "+sel] = fn
	return p
}

// OnNavigate registers a hook run after url is opened.
func (p *Page) OnNavigate(url string, fn func(p *Page) error) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hooks["navigate "+url] = fn
	return p
}

// Fail makes the call identified by "<op> <arg>" return err. Use "waitidle"
// for WaitIdle and "close" for Close.
func (p *Page) Fail(call string, err error) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs[call] = err
	return p
}

// Calls returns the recorded calls.
func (p *Page) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// Count returns how many times call was recorded.
func (p *Page) Count(call string) int {
	n := 0
	for _, c := range p.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

// CountPrefix returns how many recorded calls start with prefix.
func (p *Page) CountPrefix(prefix string) int {
	n := 0
	for _, c := range p.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// Closed returns how many times Close was called.
func (p *Page) Closed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Page) record(call string) error {
	p.mu.Lock()
	p.calls = append(p.calls, call)
	err := p.errs[call]
	hook := p.hooks[call]
	p.mu.Unlock()

	if err != nil {
		return err
	}
	if hook != nil {
		return hook(p)
	}
	return nil
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.record("navigate " + url)
}

func (p *Page) Fill(ctx context.Context, sel, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.record("fill " + sel + "=" + value)
}

func (p *Page) Click(ctx context.Context, sel string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.record("click " + sel)
}

func (p *Page) WaitIdle(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.record("waitidle")
}

func (p *Page) Visible(ctx context.Context, sel string) (bool, error) {
	if err := p.record("visible " + sel); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visibles[sel], nil
}

func (p *Page) Text(ctx context.Context, sel string) (string, error) {
	if err := p.record("text " + sel); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	text, ok := p.texts[sel]
	if !ok {
		return "", fmt.Errorf("%w: %s", browser.ErrNotFound, sel)
	}
	return text, nil
}

func (p *Page) Rows(ctx context.Context, rowSel, cellSel string) ([][]string, error) {
	if err := p.record("rows " + rowSel); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	src := p.table[rowSel]
	out := make([][]string, len(src))
	for i, row := range src {
		out[i] = append([]string(nil), row...)
	}
	return out, nil
}

func (p *Page) Close() error {
	p.mu.Lock()
	p.closed++
	err := p.errs["close"]
	p.mu.Unlock()
	return err
}
