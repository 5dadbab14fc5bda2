package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"

	"shorts-pipeline/config"
)

// ChromeLauncher starts one Chrome process per session
type ChromeLauncher struct {
	cfg         config.BrowserConfig
	downloadDir string
	log         zerolog.Logger
}

// NewChromeLauncher configures Chrome to drop downloads into downloadDir
func NewChromeLauncher(cfg config.BrowserConfig, downloadDir string, log zerolog.Logger) *ChromeLauncher {
	return &ChromeLauncher{cfg: cfg, downloadDir: downloadDir, log: log}
}

// Launch starts Chrome and returns its first tab. release tears everything down.
func (l *ChromeLauncher) Launch(ctx context.Context) (Page, func(), error) {
	downloadDir, err := filepath.Abs(l.downloadDir)
	if err != nil {
		return nil, nil, fmt.Errorf("download dir: %w", err)
	}
	if err := os.MkdirAll(downloadDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("download dir: %w", err)
	}

	profileDir := l.cfg.UserDataDir
	cleanupProfile := func() {}
	if profileDir == "" {
		profileDir, err = os.MkdirTemp("", "shorts-pipeline-chrome-*")
		if err != nil {
			return nil, nil, fmt.Errorf("profile dir: %w", err)
		}
		dir := profileDir
		cleanupProfile = func() { _ = os.RemoveAll(dir) }
	}
	if err := writePreferences(profileDir, downloadDir); err != nil {
		cleanupProfile()
		return nil, nil, err
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.cfg.Headless),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("password-store", "basic"),
		chromedp.NoSandbox,
		chromedp.UserAgent(l.cfg.UserAgent),
		chromedp.WindowSize(l.cfg.WindowWidth, l.cfg.WindowHeight),
		chromedp.UserDataDir(profileDir),
	)
	if path := strings.TrimSpace(l.cfg.ExecPath); path != "" {
		opts = append(opts, chromedp.ExecPath(path))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			l.log.Debug().Msgf("cdp: "+format, args...)
		}),
	)
	release := func() {
		tabCancel()
		allocCancel()
		cleanupProfile()
	}

	page := &chromePage{ctx: tabCtx, pageLoad: l.cfg.PageLoadTimeout}
	// the first Run starts the process
	err = page.run(ctx, cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllow).
		WithDownloadPath(downloadDir).
		WithEventsEnabled(true))
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("start chrome: %w", err)
	}
	l.log.Info().
		Bool("headless", l.cfg.Headless).
		Str("download_dir", downloadDir).
		Msg("chrome started")
	return page, release, nil
}

// writePreferences turns off the password manager prompts and pins the
// download directory. An existing profile keeps its own preferences.
func writePreferences(profileDir, downloadDir string) error {
	path := filepath.Join(profileDir, "Default", "Preferences")
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	prefs := map[string]any{
		"credentials_enable_service": false,
		"profile": map[string]any{
			"password_manager_enabled": false,
		},
		"download": map[string]any{
			"default_directory":   downloadDir,
			"prompt_for_download": false,
		},
	}
	data, err := json.Marshal(prefs)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("chrome preferences: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

type chromePage struct {
	ctx      context.Context // chromedp tab context
	cancel   context.CancelFunc
	pageLoad time.Duration
}

// run executes actions on the tab while honoring the caller's deadline and
// cancellation. Cancelling a derived context never closes the tab.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	if d, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, d)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if cerr := runCtx.Err(); cerr != nil {
			return cerr
		}
	}
	return err
}

func queryBy(sel string) chromedp.QueryOption {
	if IsXPath(sel) {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	if p.pageLoad > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.pageLoad)
		defer cancel()
	}
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *chromePage) Location(ctx context.Context) (string, error) {
	var u string
	err := p.run(ctx, chromedp.Location(&u))
	return u, err
}

func (p *chromePage) ReadyState(ctx context.Context) (string, error) {
	var state string
	err := p.run(ctx, chromedp.Evaluate(`document.readyState`, &state))
	return state, err
}

func (p *chromePage) WaitVisible(ctx context.Context, sel string) error {
	return p.run(ctx, chromedp.WaitVisible(sel, queryBy(sel)))
}

func (p *chromePage) WaitClickable(ctx context.Context, sel string) error {
	return p.run(ctx,
		chromedp.WaitVisible(sel, queryBy(sel)),
		chromedp.WaitEnabled(sel, queryBy(sel)),
	)
}

func (p *chromePage) Exists(ctx context.Context, sel string) (bool, error) {
	var n int
	err := p.eval(ctx, sel, `return __all(sel).length;`, nil, &n)
	return n > 0, err
}

func (p *chromePage) Click(ctx context.Context, sel string) error {
	return p.run(ctx, chromedp.Click(sel, queryBy(sel), chromedp.NodeVisible))
}

func (p *chromePage) Type(ctx context.Context, sel, text string) error {
	return p.run(ctx,
		chromedp.WaitVisible(sel, queryBy(sel)),
		chromedp.Clear(sel, queryBy(sel)),
		chromedp.SendKeys(sel, text, queryBy(sel)),
	)
}

// setValueJS uses the native value setter so framework-managed inputs see
// the change through their input listeners.
const setValueJS = `
const el = __all(sel)[0];
if (!el) return false;
el.focus();
const proto = el.tagName === 'TEXTAREA' ? HTMLTextAreaElement.prototype : HTMLInputElement.prototype;
const setter = Object.getOwnPropertyDescriptor(proto, 'value').set;
setter.call(el, '');
setter.call(el, arg);
el.dispatchEvent(new Event('input', { bubbles: true }));
el.dispatchEvent(new Event('change', { bubbles: true }));
return true;`

func (p *chromePage) SetValue(ctx context.Context, sel, value string) error {
	var ok bool
	if err := p.eval(ctx, sel, setValueJS, value, &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("set value: %q matched nothing", sel)
	}
	return nil
}

type probeResult struct {
	Found bool   `json:"found"`
	Value string `json:"value"`
}

func (p *chromePage) Attribute(ctx context.Context, sel, name string) (string, bool, error) {
	var res probeResult
	err := p.eval(ctx, sel, `
const el = __all(sel)[0];
if (!el || !el.hasAttribute(arg)) return { found: false, value: "" };
return { found: true, value: el.getAttribute(arg) };`, name, &res)
	return res.Value, res.Found, err
}

func (p *chromePage) Text(ctx context.Context, sel string) (string, bool, error) {
	var res probeResult
	err := p.eval(ctx, sel, `
const el = __all(sel)[0];
if (!el) return { found: false, value: "" };
return { found: true, value: (el.innerText || el.textContent || "").trim() };`, nil, &res)
	return res.Value, res.Found, err
}

func (p *chromePage) Choices(ctx context.Context, sel string) ([]Choice, error) {
	var out []Choice
	err := p.eval(ctx, sel, `
const out = [];
__all(sel).forEach((el, i) => {
  const r = el.getBoundingClientRect();
  const st = window.getComputedStyle(el);
  const visible = r.width > 0 && r.height > 0 && st.visibility !== 'hidden' && st.display !== 'none';
  const enabled = !el.disabled && el.getAttribute('aria-disabled') !== 'true';
  if (visible && enabled) out.push({ index: i, label: (el.innerText || el.textContent || "").trim() });
});
return out;`, nil, &out)
	return out, err
}

func (p *chromePage) ClickChoice(ctx context.Context, sel string, index int) error {
	var ok bool
	if err := p.eval(ctx, sel, `
const el = __all(sel)[arg];
if (!el) return false;
el.scrollIntoView({ block: 'center' });
el.click();
return true;`, index, &ok); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("click choice: %q has no match at %d", sel, index)
	}
	return nil
}

func (p *chromePage) LocalStorage(ctx context.Context, key string) (string, error) {
	var v string
	err := p.run(ctx, chromedp.Evaluate(fmt.Sprintf(`window.localStorage.getItem(%s) || ""`, jsString(key)), &v))
	return v, err
}

func (p *chromePage) SetLocalStorage(ctx context.Context, key, value string) error {
	return p.run(ctx, chromedp.Evaluate(
		fmt.Sprintf(`window.localStorage.setItem(%s, %s)`, jsString(key), jsString(value)), nil))
}

func (p *chromePage) RemoveLocalStorage(ctx context.Context, key string) error {
	return p.run(ctx, chromedp.Evaluate(fmt.Sprintf(`window.localStorage.removeItem(%s)`, jsString(key)), nil))
}

func (p *chromePage) ClickAndFollowPopup(ctx context.Context, sel string, wait time.Duration) (Page, error) {
	listenCtx, stopListening := context.WithCancel(p.ctx)
	defer stopListening()
	opened := chromedp.WaitNewTarget(listenCtx, func(info *target.Info) bool {
		return info.Type == "page"
	})

	if err := p.Click(ctx, sel); err != nil {
		return nil, err
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case id, ok := <-opened:
		if !ok {
			return p, nil
		}
		popupCtx, cancel := chromedp.NewContext(p.ctx, chromedp.WithTargetID(id))
		popup := &chromePage{ctx: popupCtx, cancel: cancel, pageLoad: p.pageLoad}
		if err := popup.run(ctx); err != nil {
			cancel()
			return nil, fmt.Errorf("attach popup: %w", err)
		}
		return popup, nil
	case <-timer.C:
		return p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *chromePage) Close() error {
	if p.cancel != nil {
		p.cancel()
	}
	return nil
}

// resolverJS resolves XPath or CSS into an element array.
const resolverJS = `const __all = (s) => {
  if (s.startsWith('/') || s.startsWith('(')) {
    const r = document.evaluate(s, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
    const a = [];
    for (let i = 0; i < r.snapshotLength; i++) a.push(r.snapshotItem(i));
    return a;
  }
  return Array.from(document.querySelectorAll(s));
};`

// eval runs body as a function of (sel, arg) with the resolver in scope.
func (p *chromePage) eval(ctx context.Context, sel, body string, arg any, out any) error {
	argJSON, err := json.Marshal(arg)
	if err != nil {
		return err
	}
	expr := fmt.Sprintf("(function(sel, arg){ %s\n%s\n})(%s, %s)",
		resolverJS, body, jsString(strings.TrimSpace(sel)), argJSON)
	if err := p.run(ctx, chromedp.Evaluate(expr, out)); err != nil {
		return fmt.Errorf("evaluate on %q: %w", sel, err)
	}
	return nil
}

func jsString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

var _ Page = (*chromePage)(nil)

// errNoPage guards Manager use before a launcher is wired
var errNoPage = errors.New("browser launcher returned no page")
