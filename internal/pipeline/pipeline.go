// Package pipeline implements the per-article extraction orchestrator.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/worknuggets/extractor/internal/extract"
	"github.com/worknuggets/extractor/internal/telemetry"
)

// Route labels for logging and metrics.
const (
	RouteHTML    = "html"
	RouteBrowser = "browser"
	RouteNone    = "none"
)

// ErrRendererUnavailable marks an infra failure: the heavy path was
// required but no renderer binding is configured. The run aborts
// without mutating the article.
var ErrRendererUnavailable = errors.New("renderer binding not available")

// Config carries the orchestrator's tuning knobs.
type Config struct {
	// ReserveSeconds is charged against the daily budget at acquire
	// time, before actual usage is known.
	ReserveSeconds   int
	MaxConcurrent    int
	MaxDailySeconds  int
	QualityThreshold float64
	// MinHeavyLength rejects browser extractions shorter than this as
	// failures.
	MinHeavyLength int
	EventsTopic    string
	ContentType    string
}

// Pipeline processes one pending article per invocation: route via the
// rule table, try the cheap extraction, fall back to the governed
// browser path, persist the outcome. Batch size of one is a deliberate
// throttle so many independent invocations share the renderer quota.
type Pipeline struct {
	store     extract.ArticleStore
	rules     *extract.RuleTable
	light     extract.LightweightExtractor
	heavy     extract.HeavyExtractor
	governor  extract.Governor
	archive   extract.BlobStore
	publisher extract.Publisher
	clock     extract.Clock
	cfg       Config
	logger    *zap.Logger
}

// Result reports whether the pass produced content.
type Result struct {
	Extracted bool `json:"extracted"`
}

// New constructs a Pipeline. Archive and publisher are optional;
// everything else is required.
func New(
	store extract.ArticleStore,
	rules *extract.RuleTable,
	light extract.LightweightExtractor,
	heavy extract.HeavyExtractor,
	gov extract.Governor,
	archive extract.BlobStore,
	publisher extract.Publisher,
	clock extract.Clock,
	cfg Config,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "text/html; charset=utf-8"
	}
	return &Pipeline{
		store:     store,
		rules:     rules,
		light:     light,
		heavy:     heavy,
		governor:  gov,
		archive:   archive,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

type attempt struct {
	text            string
	rawHTML         string
	route           string
	quality         float64
	durationSeconds int
}

// RunOnce selects one article and drives it to ready or failed. The
// returned error is reserved for infra failures (store or governor
// unreachable, renderer binding missing); those abort the pass with the
// claim rolled back to pending, so a later invocation re-selects the
// same row. Routing, acquisition, and extraction failures are absorbed
// into the failed status and never propagate. There is no retry within
// a pass.
func (p *Pipeline) RunOnce(ctx context.Context) (Result, error) {
	art, found, err := p.store.NextPending(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("select next pending: %w", err)
	}
	if !found {
		p.logger.Debug("no pending articles")
		return Result{}, nil
	}

	p.logger.Info("article picked", zap.String("id", art.ID), zap.String("link", art.Link))

	// Claim the row. Racing invocations may still pick the same row; a
	// rare duplicate extraction is tolerated, not a correctness issue.
	claiming := extract.StatusExtracting
	if err := p.store.Patch(ctx, art.ID, extract.ArticlePatch{
		ContentStatus: &claiming,
		ClearError:    true,
	}); err != nil {
		return Result{}, fmt.Errorf("claim article %s: %w", art.ID, err)
	}

	out, extractErr := p.extractArticle(ctx, art.Link)
	if extractErr != nil {
		if isInfraErr(extractErr) {
			p.logger.Error("infra failure, returning article to backlog",
				zap.String("id", art.ID), zap.Error(extractErr))
			p.unclaim(ctx, art.ID)
			return Result{}, extractErr
		}
		if err := p.persistFailure(ctx, art, out.route, extractErr); err != nil {
			return Result{}, err
		}
		return Result{}, nil
	}

	if err := p.persistSuccess(ctx, art, out); err != nil {
		return Result{}, err
	}
	return Result{Extracted: true}, nil
}

// extractArticle picks a route and runs it, returning the final text.
func (p *Pipeline) extractArticle(ctx context.Context, link string) (attempt, error) {
	host := extract.HostFromURL(link)
	category := p.rules.Classify(host)
	p.logger.Debug("domain classified",
		zap.String("host", host), zap.String("category", string(category)))

	if category == extract.CategoryBlocked {
		return attempt{route: RouteNone}, fmt.Errorf("domain %s blocked from extraction", host)
	}

	if category.ForcesBrowser() {
		p.logger.Info("domain rule forces browser",
			zap.String("host", host), zap.String("category", string(category)))
		return p.heavyGuarded(ctx, link)
	}

	light := p.light.FetchAndExtract(ctx, link)
	metrics := extract.Score(light.Text, light.Paragraphs, light.RawHTML)
	p.logger.Debug("html quality scored",
		zap.String("host", host), zap.Float64("quality", metrics.QualityScore))

	if metrics.QualityScore >= p.cfg.QualityThreshold {
		return attempt{
			text:    light.Text,
			rawHTML: light.RawHTML,
			route:   RouteHTML,
			quality: metrics.QualityScore,
		}, nil
	}

	p.logger.Info("html insufficient, escalating to browser",
		zap.String("host", host), zap.Float64("quality", metrics.QualityScore))
	return p.heavyGuarded(ctx, link)
}

// heavyGuarded runs the browser extraction inside a governor
// acquisition. Release runs on every exit path, exactly once.
func (p *Pipeline) heavyGuarded(ctx context.Context, link string) (attempt, error) {
	if p.heavy == nil {
		return attempt{route: RouteBrowser}, ErrRendererUnavailable
	}

	acq, err := p.governor.Acquire(ctx, p.cfg.ReserveSeconds, p.cfg.MaxConcurrent, p.cfg.MaxDailySeconds)
	if err != nil {
		return attempt{route: RouteBrowser}, fmt.Errorf("governor acquire: %w", err)
	}
	if !acq.OK {
		telemetry.ObserveGovernorDenial(acq.Reason)
		return attempt{route: RouteBrowser}, fmt.Errorf("browser acquire failed: %s", acq.Reason)
	}

	out, err := func() (attempt, error) {
		defer func() {
			if _, relErr := p.governor.Release(context.WithoutCancel(ctx)); relErr != nil {
				p.logger.Warn("governor release failed", zap.Error(relErr))
			}
		}()
		return p.renderOnce(ctx, link)
	}()
	return out, err
}

// renderOnce performs one browser extraction and reports actual usage.
func (p *Pipeline) renderOnce(ctx context.Context, link string) (attempt, error) {
	result, err := p.heavy.RenderAndExtract(ctx, link)
	if err != nil {
		return attempt{route: RouteBrowser}, fmt.Errorf("browser extraction: %w", err)
	}
	if len(result.Text) < p.cfg.MinHeavyLength {
		return attempt{route: RouteBrowser}, fmt.Errorf(
			"browser extracted content too short: %d chars", len(result.Text))
	}

	if _, err := p.governor.AddSeconds(ctx, result.DurationSeconds); err != nil {
		return attempt{route: RouteBrowser}, fmt.Errorf("governor addSeconds: %w", err)
	}
	telemetry.ObserveBrowserSeconds(result.DurationSeconds)

	metrics := extract.Score(result.Text, result.Paragraphs, result.RawHTML)
	return attempt{
		text:            result.Text,
		rawHTML:         result.RawHTML,
		route:           RouteBrowser,
		quality:         metrics.QualityScore,
		durationSeconds: result.DurationSeconds,
	}, nil
}

func (p *Pipeline) persistSuccess(ctx context.Context, art extract.Article, out attempt) error {
	ready := extract.StatusReady
	if err := p.store.Patch(ctx, art.ID, extract.ArticlePatch{
		ContentStatus: &ready,
		FullContent:   &out.text,
		ClearError:    true,
	}); err != nil {
		return fmt.Errorf("persist success for %s: %w", art.ID, err)
	}

	telemetry.ObserveExtraction(out.route, string(extract.StatusReady))
	p.logger.Info("extraction succeeded",
		zap.String("id", art.ID),
		zap.String("route", out.route),
		zap.Int("chars", len(out.text)),
	)

	p.archiveSnapshot(ctx, art, out)
	p.publishEvent(ctx, art, string(extract.StatusReady), out)
	return nil
}

func (p *Pipeline) persistFailure(ctx context.Context, art extract.Article, route string, cause error) error {
	failed := extract.StatusFailed
	msg := cause.Error()
	if err := p.store.Patch(ctx, art.ID, extract.ArticlePatch{
		ContentStatus: &failed,
		LastError:     &msg,
	}); err != nil {
		return fmt.Errorf("persist failure for %s: %w", art.ID, err)
	}

	if route == "" {
		route = RouteNone
	}
	telemetry.ObserveExtraction(route, string(extract.StatusFailed))
	p.logger.Warn("extraction failed",
		zap.String("id", art.ID),
		zap.String("route", route),
		zap.String("cause", msg),
	)

	p.publishEvent(ctx, art, string(extract.StatusFailed), attempt{route: route})
	return nil
}

// archiveSnapshot stores the raw HTML that produced the final text.
// Best-effort: archive failures never fail the article.
func (p *Pipeline) archiveSnapshot(ctx context.Context, art extract.Article, out attempt) {
	if p.archive == nil || out.rawHTML == "" {
		return
	}
	path := fmt.Sprintf("articles/%s/%s.html", art.ID, contentHash(out.rawHTML))
	uri, err := p.archive.PutObject(ctx, path, p.cfg.ContentType, []byte(out.rawHTML))
	if err != nil {
		p.logger.Warn("snapshot archive failed", zap.String("id", art.ID), zap.Error(err))
		return
	}
	p.logger.Debug("snapshot archived", zap.String("id", art.ID), zap.String("uri", uri))
}

// publishEvent emits a completion event. Best-effort.
func (p *Pipeline) publishEvent(ctx context.Context, art extract.Article, status string, out attempt) {
	if p.publisher == nil || p.cfg.EventsTopic == "" {
		return
	}
	payload := map[string]any{
		"article_id":       art.ID,
		"link":             art.Link,
		"status":           status,
		"route":            out.route,
		"quality_score":    out.quality,
		"duration_seconds": out.durationSeconds,
		"timestamp":        p.clock.Now().UTC(),
	}
	if _, err := p.publisher.Publish(ctx, p.cfg.EventsTopic, payload); err != nil {
		p.logger.Warn("publish completion event failed",
			zap.String("id", art.ID), zap.Error(err))
	}
}

// unclaim rolls a claimed row back to pending so the next scheduled
// invocation re-selects it. Only NextPending statuses are re-selected,
// so a row parked on extracting would otherwise wedge forever.
func (p *Pipeline) unclaim(ctx context.Context, id string) {
	back := extract.StatusPending
	if err := p.store.Patch(context.WithoutCancel(ctx), id, extract.ArticlePatch{
		ContentStatus: &back,
	}); err != nil {
		p.logger.Error("unclaim failed, article stuck extracting",
			zap.String("id", id), zap.Error(err))
	}
}

// Infra failures abort the pass without a terminal status: the
// precondition for extraction (a reachable renderer binding) was never
// met, so the article is not charged with a failure. Store failures
// take the same path directly in RunOnce.
func isInfraErr(err error) bool {
	return errors.Is(err, ErrRendererUnavailable)
}

func contentHash(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}
