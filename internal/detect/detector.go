package detect

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"priceflow/internal/extract"
	"priceflow/internal/logging"
	"priceflow/internal/page"
	"priceflow/internal/storage"
)

// Outcome classifies one completed check.
type Outcome string

const (
	// OutcomeUpdated means at least one field was confidently committed.
	OutcomeUpdated Outcome = "updated"
	// OutcomeUncertain means the extraction was recorded but nothing
	// committed to the item's current state.
	OutcomeUncertain Outcome = "uncertain"
	// OutcomeUnavailable means the product page no longer exists.
	OutcomeUnavailable Outcome = "unavailable"
	// OutcomeBlocked means a bot wall intercepted the visit.
	OutcomeBlocked Outcome = "blocked"
	// OutcomeError means the check could not be evaluated at all.
	OutcomeError Outcome = "error"
)

// Thresholds govern when an extraction is trusted enough to commit.
type Thresholds struct {
	PriceConfidence       float64
	StockConfidence       float64
	LargeChangePct        float64
	LargeChangeConfidence float64
}

// Classification is the detector's verdict on one check.
type Classification struct {
	Outcome             Outcome
	Reason              string
	CommitPrice         bool
	CommitStock         bool
	MarkUnavailable     bool
	RestoreAvailability bool
	OldPrice            *decimal.Decimal
	NewPrice            *decimal.Decimal
	NewStock            *bool
}

// Options configures a Detector.
type Options struct {
	Thresholds Thresholds
	Logger     zerolog.Logger
}

// Detector turns a capture plus extraction into a commit decision.
type Detector struct {
	thresholds Thresholds
	logger     zerolog.Logger
}

// NewDetector builds a Detector.
func NewDetector(opts Options) *Detector {
	return &Detector{
		thresholds: opts.Thresholds,
		logger:     logging.Component(opts.Logger, "detect"),
	}
}

// Classify evaluates one check. The page-level verdicts (blocked,
// unavailable, wrong page) run before any extraction is considered, so a
// confident-looking price on a captcha page never commits.
func (d *Detector) Classify(item storage.MonitoredItem, capture *page.Capture, result *extract.Result) Classification {
	if capture == nil {
		return Classification{Outcome: OutcomeError, Reason: "no capture"}
	}

	if IsBotWall(capture.Title, capture.Text) {
		return Classification{Outcome: OutcomeBlocked, Reason: "bot wall detected"}
	}
	if capture.UnavailableHint {
		return Classification{
			Outcome:         OutcomeUnavailable,
			Reason:          "page reports product unavailable",
			MarkUnavailable: true,
		}
	}

	if IsPlaceholderTitle(capture.Title) && result == nil {
		return Classification{Outcome: OutcomeBlocked, Reason: "placeholder title, no extraction"}
	}

	if capture.Title != "" && !TitleMatches(item.Name, capture.Title) {
		if IsPlaceholderTitle(capture.Title) {
			return Classification{
				Outcome: OutcomeUncertain,
				Reason:  fmt.Sprintf("placeholder title %q carries no product", capture.Title),
			}
		}
		// A real product title that matches nothing we monitor: the item
		// was delisted or the URL now serves a different product.
		return Classification{
			Outcome:         OutcomeUnavailable,
			Reason:          fmt.Sprintf("page title %q does not match item", capture.Title),
			MarkUnavailable: true,
		}
	}

	verdict := Classification{RestoreAvailability: !item.IsAvailable}

	if result == nil {
		verdict.Outcome = OutcomeError
		verdict.Reason = "no extraction result"
		return verdict
	}

	if result.Price != nil {
		d.classifyPrice(item, result, &verdict)
	}

	if result.InStock != nil && result.InStockConfidence >= d.thresholds.StockConfidence {
		verdict.CommitStock = true
		verdict.NewStock = result.InStock
	}

	switch {
	case verdict.CommitPrice || verdict.CommitStock:
		verdict.Outcome = OutcomeUpdated
	default:
		verdict.Outcome = OutcomeUncertain
		if verdict.Reason == "" {
			verdict.Reason = "no field reached its confidence threshold"
		}
	}
	return verdict
}

func (d *Detector) classifyPrice(item storage.MonitoredItem, result *extract.Result, verdict *Classification) {
	verdict.NewPrice = result.Price
	verdict.OldPrice = item.CurrentPrice

	if result.PriceConfidence < d.thresholds.PriceConfidence {
		verdict.Reason = fmt.Sprintf("price confidence %.2f below threshold %.2f",
			result.PriceConfidence, d.thresholds.PriceConfidence)
		return
	}

	if item.CurrentPrice != nil && !item.CurrentPrice.IsZero() {
		change := changePct(*item.CurrentPrice, *result.Price)
		if change.GreaterThan(decimal.NewFromFloat(d.thresholds.LargeChangePct)) &&
			result.PriceConfidence < d.thresholds.LargeChangeConfidence {
			verdict.Reason = fmt.Sprintf("price jump of %s%% needs confidence >= %.2f, got %.2f",
				change.StringFixed(1), d.thresholds.LargeChangeConfidence, result.PriceConfidence)
			return
		}
	}

	verdict.CommitPrice = true
}

// changePct is the absolute percentage move from prev to next.
func changePct(prev, next decimal.Decimal) decimal.Decimal {
	return next.Sub(prev).Abs().Div(prev.Abs()).Mul(decimal.NewFromInt(100))
}
