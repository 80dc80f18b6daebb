package extract

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"priceflow/internal/logging"
	"priceflow/internal/page"
	"priceflow/internal/storage"
)

// ErrSkip tells the fusion chain a strategy has nothing to say about this
// capture and the next one should run.
var ErrSkip = errors.New("extract: strategy skipped")

// Strategy is one stage of the extraction chain.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, item storage.MonitoredItem, capture *page.Capture) (*Result, error)
}

// lastResort marks strategies that run only when no earlier stage produced
// a price at all, not even a low-confidence one.
type lastResort interface {
	LastResort() bool
}

func isLastResort(s Strategy) bool {
	lr, ok := s.(lastResort)
	return ok && lr.LastResort()
}

// Options configures a Fusion.
type Options struct {
	Strategies         []Strategy
	MinPriceConfidence float64
	Logger             zerolog.Logger
}

// Fusion runs strategies in order and returns the first adequate result. An
// inadequate result is kept as fallback so low-confidence extractions still
// reach the detector and the audit trail.
type Fusion struct {
	strategies []Strategy
	minConf    float64
	logger     zerolog.Logger
}

// NewFusion builds the chain. Order of Strategies is significant: cheap and
// deterministic first, vision last.
func NewFusion(opts Options) *Fusion {
	return &Fusion{
		strategies: opts.Strategies,
		minConf:    opts.MinPriceConfidence,
		logger:     logging.Component(opts.Logger, "extract"),
	}
}

// Extract fuses the strategies over one capture. A nil result with nil error
// means every stage skipped or failed.
func (f *Fusion) Extract(ctx context.Context, item storage.MonitoredItem, capture *page.Capture) (*Result, error) {
	var fallback *Result
	priceSeen := false

	for _, strategy := range f.strategies {
		if ctx.Err() != nil {
			return fallback, ctx.Err()
		}
		if priceSeen && isLastResort(strategy) {
			f.logger.Debug().Str("strategy", strategy.Name()).Msg("price already found, last-resort strategy skipped")
			continue
		}

		result, err := strategy.Extract(ctx, item, capture)
		switch {
		case errors.Is(err, ErrSkip):
			f.logger.Debug().Str("strategy", strategy.Name()).Msg("strategy skipped")
			continue
		case err != nil:
			f.logger.Warn().Err(err).Str("strategy", strategy.Name()).Int64("item_id", item.ID).Msg("strategy failed")
			continue
		case result == nil:
			continue
		}

		if result.Price != nil {
			priceSeen = true
		}

		if result.Price != nil && result.PriceConfidence >= f.minConf {
			f.logger.Debug().
				Str("strategy", strategy.Name()).
				Str("price", result.Price.String()).
				Float64("confidence", result.PriceConfidence).
				Msg("extraction accepted")
			return result, nil
		}

		if fallback == nil || result.PriceConfidence > fallback.PriceConfidence {
			fallback = result
		}
	}

	return fallback, nil
}
