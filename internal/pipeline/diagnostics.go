package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/worknuggets/extractor/internal/extract"
)

// TestReport is the response of the on-demand single-URL extraction.
type TestReport struct {
	OK              bool                   `json:"ok"`
	Reason          string                 `json:"reason,omitempty"`
	Metrics         extract.QualityMetrics `json:"metrics"`
	Length          int                    `json:"length"`
	DurationSeconds int                    `json:"durationSeconds"`
}

// TestExtract exercises the guarded heavy path end-to-end for one URL
// without touching the article store. Quota is consumed for real; this
// is a staging/dev diagnostic, not part of the production trigger path.
func (p *Pipeline) TestExtract(ctx context.Context, url string) (TestReport, error) {
	if p.heavy == nil {
		return TestReport{}, ErrRendererUnavailable
	}

	acq, err := p.governor.Acquire(ctx, p.cfg.ReserveSeconds, p.cfg.MaxConcurrent, p.cfg.MaxDailySeconds)
	if err != nil {
		return TestReport{}, fmt.Errorf("governor acquire: %w", err)
	}
	if !acq.OK {
		return TestReport{Reason: acq.Reason}, nil
	}

	defer func() {
		if _, relErr := p.governor.Release(context.WithoutCancel(ctx)); relErr != nil {
			p.logger.Warn("governor release failed", zap.Error(relErr))
		}
	}()

	result, err := p.heavy.RenderAndExtract(ctx, url)
	if err != nil {
		return TestReport{}, fmt.Errorf("browser extraction: %w", err)
	}
	if _, err := p.governor.AddSeconds(ctx, result.DurationSeconds); err != nil {
		p.logger.Warn("governor addSeconds failed", zap.Error(err))
	}

	return TestReport{
		OK:              true,
		Metrics:         extract.Score(result.Text, result.Paragraphs, result.RawHTML),
		Length:          len(result.Text),
		DurationSeconds: result.DurationSeconds,
	}, nil
}

// RendererHealth reports renderer binding health without touching quota.
func (p *Pipeline) RendererHealth(ctx context.Context) error {
	if p.heavy == nil {
		return ErrRendererUnavailable
	}
	if err := p.heavy.Health(ctx); err != nil {
		return fmt.Errorf("renderer health: %w", err)
	}
	return nil
}
