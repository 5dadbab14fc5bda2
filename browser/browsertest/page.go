// Package browsertest provides a scriptable in-memory browser.Page.
package browsertest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"shorts-pipeline/browser"
)

const pollEvery = 2 * time.Millisecond

// Page is a fake page whose DOM is a set of selectors marked visible.
// Hooks registered with OnClick and OnNavigate mutate it to model the site.
type Page struct {
	mu         sync.Mutex
	url        string
	ready      string
	visible    map[string]bool
	disabled   map[string]bool
	storage    map[string]string
	attrs      map[string]map[string]string
	texts      map[string]string
	choices    map[string][]browser.Choice
	values     map[string]string
	onClick    map[string][]func(*Page)
	onNavigate []func(*Page, string)
	popups     map[string]*Page
	failures   map[string]error
	calls      []string
	closed     bool
}

// New returns an empty page at about:blank
func New() *Page {
	return &Page{
		url:      "about:blank",
		ready:    "complete",
		visible:  map[string]bool{},
		disabled: map[string]bool{},
		storage:  map[string]string{},
		attrs:    map[string]map[string]string{},
		texts:    map[string]string{},
		choices:  map[string][]browser.Choice{},
		values:   map[string]string{},
		onClick:  map[string][]func(*Page){},
		popups:   map[string]*Page{},
		failures: map[string]error{},
	}
}

// --- scripting ---

func (p *Page) SetURL(u string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = u
}

func (p *Page) SetReadyState(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ready = s
}

func (p *Page) Show(sels ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range sels {
		p.visible[s] = true
	}
}

func (p *Page) Hide(sels ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range sels {
		delete(p.visible, s)
	}
}

func (p *Page) Disable(sel string, disabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disabled[sel] = disabled
}

func (p *Page) SetAttr(sel, name, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.attrs[sel] == nil {
		p.attrs[sel] = map[string]string{}
	}
	p.attrs[sel][name] = value
}

func (p *Page) SetText(sel, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.texts[sel] = text
}

func (p *Page) SetChoices(sel string, labels ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cs := make([]browser.Choice, len(labels))
	for i, l := range labels {
		cs[i] = browser.Choice{Index: i, Label: l}
	}
	p.choices[sel] = cs
}

func (p *Page) SetStorage(key, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.storage[key] = value
}

// OnClick runs fn after sel is clicked. Choice clicks use the key
// ChoiceKey(sel, index).
func (p *Page) OnClick(sel string, fn func(*Page)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onClick[sel] = append(p.onClick[sel], fn)
}

// OnNavigate runs fn after every navigation
func (p *Page) OnNavigate(fn func(*Page, string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onNavigate = append(p.onNavigate, fn)
}

// Popup makes a click on sel open popup
func (p *Page) Popup(sel string, popup *Page) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.popups[sel] = popup
}

// FailOn makes operation op ("navigate", "click", "set-value", ...) on sel
// fail with err. Use "*" to match any selector.
func (p *Page) FailOn(op, sel string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[op+" "+sel] = err
}

// ChoiceKey is the OnClick key for a ClickChoice
func ChoiceKey(sel string, index int) string {
	return fmt.Sprintf("%s#%d", sel, index)
}

// --- inspection ---

// Calls returns the operation log, e.g. "navigate https://..." or "click //button"
func (p *Page) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// Called reports whether an operation with this exact log line happened
func (p *Page) Called(line string) bool {
	for _, c := range p.Calls() {
		if c == line {
			return true
		}
	}
	return false
}

// CalledPrefix counts log lines starting with prefix
func (p *Page) CalledPrefix(prefix string) int {
	n := 0
	for _, c := range p.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (p *Page) Value(sel string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.values[sel]
}

func (p *Page) Storage(key string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.storage[key]
	return v, ok
}

func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// --- browser.Page ---

func (p *Page) record(op, arg string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, strings.TrimSpace(op+" "+arg))
	if err, ok := p.failures[op+" "+arg]; ok {
		return err
	}
	if err, ok := p.failures[op+" *"]; ok {
		return err
	}
	return nil
}

func (p *Page) waitUntil(ctx context.Context, cond func() bool) error {
	for {
		p.mu.Lock()
		ok := cond()
		p.mu.Unlock()
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollEvery):
		}
	}
}

func (p *Page) runHooks(key string) {
	p.mu.Lock()
	hooks := append([]func(*Page){}, p.onClick[key]...)
	p.mu.Unlock()
	for _, h := range hooks {
		h(p)
	}
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := p.record("navigate", url); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.url = url
	hooks := append([]func(*Page, string){}, p.onNavigate...)
	p.mu.Unlock()
	for _, h := range hooks {
		h(p, url)
	}
	return nil
}

func (p *Page) Location(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *Page) ReadyState(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready, nil
}

func (p *Page) WaitVisible(ctx context.Context, sel string) error {
	if err := p.record("wait-visible", sel); err != nil {
		return err
	}
	return p.waitUntil(ctx, func() bool { return p.visible[sel] })
}

func (p *Page) WaitClickable(ctx context.Context, sel string) error {
	if err := p.record("wait-clickable", sel); err != nil {
		return err
	}
	return p.waitUntil(ctx, func() bool { return p.visible[sel] && !p.disabled[sel] })
}

func (p *Page) Exists(ctx context.Context, sel string) (bool, error) {
	if err := p.record("exists", sel); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible[sel], nil
}

func (p *Page) Click(ctx context.Context, sel string) error {
	if err := p.record("click", sel); err != nil {
		return err
	}
	if err := p.waitUntil(ctx, func() bool { return p.visible[sel] }); err != nil {
		return err
	}
	p.runHooks(sel)
	return nil
}

func (p *Page) Type(ctx context.Context, sel, text string) error {
	if err := p.record("type", sel); err != nil {
		return err
	}
	if err := p.waitUntil(ctx, func() bool { return p.visible[sel] }); err != nil {
		return err
	}
	p.mu.Lock()
	p.values[sel] = text
	p.mu.Unlock()
	return nil
}

func (p *Page) SetValue(ctx context.Context, sel, value string) error {
	if err := p.record("set-value", sel); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.visible[sel] {
		return fmt.Errorf("set value: %q matched nothing", sel)
	}
	p.values[sel] = value
	return nil
}

func (p *Page) Attribute(ctx context.Context, sel, name string) (string, bool, error) {
	if err := p.record("attribute", sel); err != nil {
		return "", false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.attrs[sel][name]
	return v, ok, nil
}

func (p *Page) Text(ctx context.Context, sel string) (string, bool, error) {
	if err := p.record("text", sel); err != nil {
		return "", false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.texts[sel]
	return v, ok, nil
}

func (p *Page) Choices(ctx context.Context, sel string) ([]browser.Choice, error) {
	if err := p.record("choices", sel); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]browser.Choice(nil), p.choices[sel]...), nil
}

func (p *Page) ClickChoice(ctx context.Context, sel string, index int) error {
	if err := p.record("click-choice", ChoiceKey(sel, index)); err != nil {
		return err
	}
	p.mu.Lock()
	found := false
	for _, c := range p.choices[sel] {
		if c.Index == index {
			found = true
		}
	}
	p.mu.Unlock()
	if !found {
		return fmt.Errorf("click choice: %q has no match at %d", sel, index)
	}
	p.runHooks(ChoiceKey(sel, index))
	return nil
}

func (p *Page) LocalStorage(ctx context.Context, key string) (string, error) {
	if err := p.record("storage-get", key); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.storage[key], nil
}

func (p *Page) SetLocalStorage(ctx context.Context, key, value string) error {
	if err := p.record("storage-set", key); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.storage[key] = value
	return nil
}

func (p *Page) RemoveLocalStorage(ctx context.Context, key string) error {
	if err := p.record("storage-remove", key); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.storage, key)
	return nil
}

func (p *Page) ClickAndFollowPopup(ctx context.Context, sel string, wait time.Duration) (browser.Page, error) {
	if err := p.Click(ctx, sel); err != nil {
		return nil, err
	}
	p.mu.Lock()
	popup := p.popups[sel]
	p.mu.Unlock()
	if popup != nil {
		return popup, nil
	}
	return p, nil
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

var _ browser.Page = (*Page)(nil)

// Launcher hands out a prepared page, or fails with Err
type Launcher struct {
	Page     *Page
	Err      error
	mu       sync.Mutex
	launched int
	released int
}

func (l *Launcher) Launch(ctx context.Context) (browser.Page, func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return nil, nil, l.Err
	}
	l.launched++
	if l.Page == nil {
		l.Page = New()
	}
	return l.Page, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.released++
	}, nil
}

// Counts returns how many sessions were launched and released
func (l *Launcher) Counts() (launched, released int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launched, l.released
}
