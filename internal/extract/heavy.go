package extract

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ErrBotDetected indicates the rendered page was a captcha or bot-block
// interstitial rather than article content.
var ErrBotDetected = errors.New("bot detection / captcha detected")

// Desktop profile presented to sites that filter on trivial bot signals.
const (
	defaultBrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	defaultAcceptLanguage   = "en-US,en;q=0.9"
	defaultAccept           = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"
)

// BrowserExtractorConfig controls the headless rendering strategy.
type BrowserExtractorConfig struct {
	UserAgent         string
	NavigationTimeout time.Duration
	SettleDelay       time.Duration
}

// BrowserExtractor renders pages in headless Chromium via chromedp and
// extracts paragraphs from the live DOM snapshot.
type BrowserExtractor struct {
	cfg         BrowserExtractorConfig
	detector    *BlockDetector
	allocator   context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
}

// NewBrowserExtractor creates the extractor and its Chrome allocator.
func NewBrowserExtractor(cfg BrowserExtractorConfig, detector *BlockDetector, logger *zap.Logger) *BrowserExtractor {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultBrowserUserAgent
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 60 * time.Second
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 3 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &BrowserExtractor{
		cfg:         cfg,
		detector:    detector,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      logger,
	}
}

// Close cancels the allocator context.
func (e *BrowserExtractor) Close() {
	e.allocCancel()
}

// RenderAndExtract loads the URL in a fresh tab, waits for DOM
// construction plus a short settle period, and extracts paragraphs from
// the rendered markup. The tab is torn down on every exit path. The
// returned duration is wall-clock seconds for quota accounting.
func (e *BrowserExtractor) RenderAndExtract(ctx context.Context, url string) (HeavyResult, error) {
	tabCtx, cancelTab := chromedp.NewContext(e.allocator)
	defer cancelTab()

	// Timeout bounds navigation only to DOM readiness; the settle delay
	// rides inside the same budget.
	taskCtx, cancelTask := context.WithTimeout(tabCtx, e.cfg.NavigationTimeout+e.cfg.SettleDelay)
	defer cancelTask()

	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	start := time.Now()
	var html string
	actions := []chromedp.Action{
		network.Enable(),
		emulation.SetUserAgentOverride(e.cfg.UserAgent),
		network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": defaultAcceptLanguage,
			"Accept":          defaultAccept,
		}),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(e.cfg.SettleDelay),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return HeavyResult{}, fmt.Errorf("chromedp run: %w", err)
	}

	durationSeconds := int(math.Round(time.Since(start).Seconds()))
	paras := ExtractParagraphs(html)
	text := JoinParagraphs(paras)

	if e.detector.Blocked(text, html) {
		e.logger.Warn("bot block detected", zap.String("url", url))
		return HeavyResult{DurationSeconds: durationSeconds}, ErrBotDetected
	}

	return HeavyResult{
		Text:            text,
		Paragraphs:      paras,
		RawHTML:         html,
		DurationSeconds: durationSeconds,
	}, nil
}

// Health launches a throwaway tab to confirm the Chromium binding is
// usable. It consumes no quota.
func (e *BrowserExtractor) Health(ctx context.Context) error {
	tabCtx, cancelTab := chromedp.NewContext(e.allocator)
	defer cancelTab()

	checkCtx, cancel := context.WithTimeout(tabCtx, 10*time.Second)
	defer cancel()

	stopForward := forwardCancel(ctx, cancel)
	defer stopForward()

	if err := chromedp.Run(checkCtx); err != nil {
		return fmt.Errorf("renderer binding unavailable: %w", err)
	}
	return nil
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
