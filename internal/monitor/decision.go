package monitor

import (
	"fmt"

	"github.com/shopspring/decimal"

	"priceflow/internal/storage"
)

// Notification kinds, in decreasing priority. At most one notification per
// committed price change.
const (
	NotifyTarget = "target"
	NotifyDrop   = "drop"
	NotifyRise   = "rise"
)

// PriceNotification is a decided, ready-to-send notification.
type PriceNotification struct {
	Kind  string
	Title string
	Body  string
}

// DecideNotification applies the notification rules to a committed price
// change:
//
//   - target price reached, first crossing only (a previous price already
//     at or below target stays silent until the price rebounds above it),
//   - any decrease,
//   - increases of at least risePct percent.
func DecideNotification(item storage.MonitoredItem, oldPrice, newPrice *decimal.Decimal, risePct float64) *PriceNotification {
	if newPrice == nil {
		return nil
	}

	if item.TargetPrice != nil && newPrice.LessThanOrEqual(*item.TargetPrice) {
		if oldPrice == nil || oldPrice.GreaterThan(*item.TargetPrice) {
			return &PriceNotification{
				Kind:  NotifyTarget,
				Title: fmt.Sprintf("Prix cible atteint: %s", item.Name),
				Body: fmt.Sprintf("%s est à %s € (objectif %s €)",
					item.Name, newPrice.StringFixed(2), item.TargetPrice.StringFixed(2)),
			}
		}
		return nil
	}

	if oldPrice == nil || oldPrice.Equal(*newPrice) {
		return nil
	}

	if newPrice.LessThan(*oldPrice) {
		return &PriceNotification{
			Kind:  NotifyDrop,
			Title: fmt.Sprintf("Baisse de prix: %s", item.Name),
			Body: fmt.Sprintf("%s est passé de %s € à %s €",
				item.Name, oldPrice.StringFixed(2), newPrice.StringFixed(2)),
		}
	}

	// A stored price of zero makes the rise percentage undefined.
	if oldPrice.IsZero() {
		return nil
	}

	increase := newPrice.Sub(*oldPrice).Div(oldPrice.Abs()).Mul(decimal.NewFromInt(100))
	if increase.GreaterThanOrEqual(decimal.NewFromFloat(risePct)) {
		return &PriceNotification{
			Kind:  NotifyRise,
			Title: fmt.Sprintf("Hausse de prix: %s", item.Name),
			Body: fmt.Sprintf("%s est passé de %s € à %s € (+%s%%)",
				item.Name, oldPrice.StringFixed(2), newPrice.StringFixed(2), increase.StringFixed(1)),
		}
	}
	return nil
}
