// Package chromedp renders receipt layouts to PDF with headless Chrome.
package chromedp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/TON618OFF/FactorioStore/internal/receipt"
)

const (
	a4WidthMM  = 210
	a4HeightMM = 297
	marginMM   = 10

	defaultTimeout = 30 * time.Second
)

// Config controls how Chrome is reached.
type Config struct {
	// RemoteURL is the DevTools websocket of an already running browser.
	// When empty a local headless Chrome is launched.
	RemoteURL string
	// NoSandbox is required when Chrome runs as root inside a container.
	NoSandbox bool
	// Timeout bounds a single render.
	Timeout time.Duration
}

// Renderer prints receipt layouts to A4 PDFs. One browser is shared by all
// renders and each render gets its own tab.
type Renderer struct {
	cfg         Config
	logger      *slog.Logger
	allocCtx    context.Context
	allocCancel context.CancelFunc
	pageHTML    func(*receipt.Layout) (string, error)

	mu            sync.Mutex
	browserCtx    context.Context
	browserCancel context.CancelFunc
	starts        int
}

var _ receipt.Renderer = (*Renderer)(nil)

// New creates a renderer. The browser itself starts lazily on first render.
func New(cfg Config, logger *slog.Logger) *Renderer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	r := &Renderer{cfg: cfg, logger: logger, pageHTML: receipt.HTML}
	if cfg.RemoteURL != "" {
		r.allocCtx, r.allocCancel = chromedp.NewRemoteAllocator(context.Background(), cfg.RemoteURL)
	} else {
		r.allocCtx, r.allocCancel = chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
	}
	return r
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("font-render-hinting", "none"),
	)
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	return opts
}

// Render prints the layout and returns the PDF bytes.
func (r *Renderer) Render(ctx context.Context, layout *receipt.Layout) ([]byte, error) {
	if layout == nil {
		return nil, errors.New("render receipt: nil layout")
	}
	html, err := r.pageHTML(layout)
	if err != nil {
		return nil, fmt.Errorf("render receipt: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	browserCtx, err := r.browser(ctx)
	if err != nil {
		return nil, fmt.Errorf("render receipt: %w", err)
	}
	tabCtx, tabCancel := chromedp.NewContext(browserCtx)
	defer tabCancel()

	// Tie the tab's lifetime to the caller's deadline.
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	start := time.Now()
	var pdf []byte
	err = chromedp.Run(tabCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			data, _, err := printParams().Do(ctx)
			if err != nil {
				return err
			}
			pdf = data
			return nil
		}),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("render receipt: %w", ctxErr)
		}
		return nil, fmt.Errorf("render receipt: chrome: %w", err)
	}
	if len(pdf) == 0 {
		return nil, errors.New("render receipt: chrome returned an empty PDF")
	}

	r.logger.DebugContext(ctx, "receipt rendered",
		slog.Int("bytes", len(pdf)),
		slog.Duration("duration", time.Since(start)),
	)
	return pdf, nil
}

func printParams() *page.PrintToPDFParams {
	return page.PrintToPDF().
		WithPrintBackground(true).
		WithPaperWidth(mmToInches(a4WidthMM)).
		WithPaperHeight(mmToInches(a4HeightMM)).
		WithMarginTop(mmToInches(marginMM)).
		WithMarginRight(mmToInches(marginMM)).
		WithMarginBottom(mmToInches(marginMM)).
		WithMarginLeft(mmToInches(marginMM)).
		WithPreferCSSPageSize(false)
}

// browser returns the shared browser context, starting Chrome on first use
// or after the previous browser went away. A failed start is not cached.
func (r *Renderer) browser(ctx context.Context) (context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browserCtx != nil && r.browserCtx.Err() == nil {
		return r.browserCtx, nil
	}
	if err := r.allocCtx.Err(); err != nil {
		return nil, fmt.Errorf("chrome: renderer closed: %w", err)
	}

	browserCtx, cancel := chromedp.NewContext(r.allocCtx)
	stop := context.AfterFunc(ctx, cancel)
	err := chromedp.Run(browserCtx)
	if !stop() {
		err = errors.Join(err, ctx.Err())
	}
	if err != nil {
		cancel()
		return nil, fmt.Errorf("chrome unavailable: %w", err)
	}

	r.browserCtx, r.browserCancel = browserCtx, cancel
	r.starts++
	r.logger.Info("chrome browser started", slog.Bool("remote", r.cfg.RemoteURL != ""))
	return browserCtx, nil
}

// Ping opens and closes a tab in the shared browser.
func (r *Renderer) Ping(ctx context.Context) error {
	browserCtx, err := r.browser(ctx)
	if err != nil {
		return err
	}
	tabCtx, cancel := chromedp.NewContext(browserCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(tabCtx); err != nil {
		return fmt.Errorf("chrome unavailable: %w", err)
	}
	return nil
}

// Close shuts the browser down.
func (r *Renderer) Close() error {
	r.mu.Lock()
	if r.browserCancel != nil {
		r.browserCancel()
		r.browserCtx, r.browserCancel = nil, nil
	}
	r.mu.Unlock()
	r.allocCancel()
	return nil
}

func mmToInches(mm float64) float64 {
	return mm / 25.4
}
