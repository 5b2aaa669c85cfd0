package extract

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// HTTPExtractorConfig controls the plain-HTTP extraction attempt.
type HTTPExtractorConfig struct {
	UserAgent string
	Timeout   time.Duration
}

// HTTPExtractor is the cheap extraction strategy: a single bounded GET
// followed by paragraph extraction. It identifies itself honestly via
// a bot User-Agent and never escalates a failure to the caller.
type HTTPExtractor struct {
	cfg           HTTPExtractorConfig
	baseCollector *colly.Collector
	logger        *zap.Logger
}

// NewHTTPExtractor builds an HTTPExtractor backed by a colly collector.
func NewHTTPExtractor(cfg HTTPExtractorConfig, logger *zap.Logger) *HTTPExtractor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "WorkNuggetsBot/1.0 (+https://worknuggets.com)"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())

	return &HTTPExtractor{
		cfg:           cfg,
		baseCollector: c,
		logger:        logger,
	}
}

// FetchAndExtract GETs the URL and extracts candidate paragraphs.
// Any network or HTTP failure yields an empty result; the absence of
// usable text is the failure signal, not an error.
func (e *HTTPExtractor) FetchAndExtract(ctx context.Context, url string) LightweightResult {
	var (
		rawHTML  string
		fetchErr error
	)

	collector := e.baseCollector.Clone()
	collector.UserAgent = e.cfg.UserAgent
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(e.cfg.Timeout)

	collector.OnResponse(func(r *colly.Response) {
		rawHTML = string(r.Body)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		e.logger.Debug("http extraction canceled", zap.String("url", url), zap.Error(ctx.Err()))
		return LightweightResult{}
	case err := <-done:
		if err != nil {
			fetchErr = err
		}
	}
	if fetchErr != nil {
		e.logger.Debug("http extraction failed", zap.String("url", url), zap.Error(fetchErr))
		return LightweightResult{}
	}

	paras := ExtractParagraphs(rawHTML)
	return LightweightResult{
		Text:       JoinParagraphs(paras),
		Paragraphs: paras,
		RawHTML:    rawHTML,
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
