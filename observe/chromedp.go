package observe

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/panoroam/geo"
)

// ChromeConfig 配置基于 chromedp 的截图采集器。
type ChromeConfig struct {
	// URLTemplate is the viewer URL. Placeholders {id}, {lat}, {lng} and
	// {heading} are substituted (query-escaped) per capture.
	URLTemplate    string
	Headless       bool
	ViewportWidth  int
	ViewportHeight int
	// WaitSelector, when set, must be visible before the screenshot.
	WaitSelector string
	// SettleDelay lets tiles finish loading after navigation.
	SettleDelay time.Duration
	// Timeout bounds a single capture.
	Timeout time.Duration
	Quality int
}

// DefaultChromeConfig returns sensible capture defaults.
func DefaultChromeConfig() ChromeConfig {
	return ChromeConfig{
		Headless:       true,
		ViewportWidth:  1024,
		ViewportHeight: 768,
		SettleDelay:    1500 * time.Millisecond,
		Timeout:        30 * time.Second,
		Quality:        80,
	}
}

// ChromeCapturer screenshots a panorama viewer page with a headless browser.
// The browser starts on first use; captures are serialised.
type ChromeCapturer struct {
	cfg    ChromeConfig
	logger *zap.Logger

	mu          sync.Mutex
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
}

var _ Capturer = (*ChromeCapturer)(nil)

// NewChromeCapturer creates a capturer; it fails only on invalid config.
func NewChromeCapturer(cfg ChromeConfig, logger *zap.Logger) (*ChromeCapturer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.URLTemplate == "" {
		return nil, fmt.Errorf("observe: chrome capturer needs a url template")
	}
	def := DefaultChromeConfig()
	if cfg.ViewportWidth <= 0 {
		cfg.ViewportWidth = def.ViewportWidth
	}
	if cfg.ViewportHeight <= 0 {
		cfg.ViewportHeight = def.ViewportHeight
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = def.Quality
	}
	return &ChromeCapturer{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "chromedp_capturer")),
	}, nil
}

// RenderURL substitutes the request into the viewer URL template.
func (c *ChromeCapturer) RenderURL(req Request) string {
	r := strings.NewReplacer(
		"{id}", url.QueryEscape(req.NodeID),
		"{lat}", strconv.FormatFloat(req.Position.Lat, 'f', 6, 64),
		"{lng}", strconv.FormatFloat(req.Position.Lng, 'f', 6, 64),
		"{heading}", strconv.FormatFloat(geo.NormalizeHeading(req.Heading), 'f', 1, 64),
	)
	return r.Replace(c.cfg.URLTemplate)
}

func (c *ChromeCapturer) startLocked() error {
	if c.ctx != nil {
		return nil
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", c.cfg.Headless),
		chromedp.WindowSize(c.cfg.ViewportWidth, c.cfg.ViewportHeight),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	ctx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			c.logger.Debug(fmt.Sprintf(format, args...))
		}),
	)
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		allocCancel()
		return fmt.Errorf("failed to start browser: %w", err)
	}
	c.ctx, c.cancel, c.allocCancel = ctx, cancel, allocCancel
	c.logger.Info("chromedp browser started",
		zap.Bool("headless", c.cfg.Headless),
		zap.Int("viewport_w", c.cfg.ViewportWidth),
		zap.Int("viewport_h", c.cfg.ViewportHeight))
	return nil
}

// Capture implements Capturer.
func (c *ChromeCapturer) Capture(ctx context.Context, req Request) (Observation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.startLocked(); err != nil {
		return Observation{}, err
	}

	tabCtx, cancel := context.WithTimeout(c.ctx, c.cfg.Timeout)
	defer cancel()
	// 调用方取消时同步取消截图
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	target := c.RenderURL(req)
	actions := []chromedp.Action{chromedp.Navigate(target)}
	if c.cfg.WaitSelector != "" {
		actions = append(actions, chromedp.WaitVisible(c.cfg.WaitSelector, chromedp.ByQuery))
	}
	if c.cfg.SettleDelay > 0 {
		actions = append(actions, chromedp.Sleep(c.cfg.SettleDelay))
	}
	var buf []byte
	actions = append(actions, chromedp.FullScreenshot(&buf, c.cfg.Quality))

	start := time.Now()
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		return Observation{}, fmt.Errorf("screenshot of %s failed: %w", req.NodeID, err)
	}
	c.logger.Debug("captured observation",
		zap.String("node_id", req.NodeID),
		zap.Float64("heading", req.Heading),
		zap.Int("bytes", len(buf)),
		zap.Duration("latency", time.Since(start)))

	return Observation{
		Ref:        "obs-" + uuid.NewString(),
		NodeID:     req.NodeID,
		Heading:    req.Heading,
		MIMEType:   "image/jpeg",
		Image:      buf,
		CapturedAt: time.Now(),
	}, nil
}

// Close shuts the browser down.
func (c *ChromeCapturer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx == nil {
		return nil
	}
	c.logger.Info("closing chromedp browser")
	c.cancel()
	c.allocCancel()
	c.ctx, c.cancel, c.allocCancel = nil, nil, nil
	return nil
}
