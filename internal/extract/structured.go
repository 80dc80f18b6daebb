package extract

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"priceflow/internal/logging"
	"priceflow/internal/page"
	"priceflow/internal/storage"
)

// StructuredConfidence applies to prices read from JSON-LD. Slightly below
// adapter output because retailers often forget to update the markup during
// promotions.
const StructuredConfidence = 0.9

// StructuredDataStrategy scans schema.org Product blocks embedded as JSON-LD.
type StructuredDataStrategy struct {
	logger zerolog.Logger
}

var _ Strategy = (*StructuredDataStrategy)(nil)

// NewStructuredDataStrategy builds the strategy.
func NewStructuredDataStrategy(logger zerolog.Logger) *StructuredDataStrategy {
	return &StructuredDataStrategy{logger: logging.Component(logger, "extract.structured")}
}

func (s *StructuredDataStrategy) Name() string { return "structured" }

func (s *StructuredDataStrategy) Extract(ctx context.Context, item storage.MonitoredItem, capture *page.Capture) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(capture.HTML))
	if err != nil {
		return nil, ErrSkip
	}

	var result *Result
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if parsed := parseJSONLD(sel.Text()); parsed != nil {
			result = parsed
			return false
		}
		return true
	})

	if result == nil {
		return nil, ErrSkip
	}
	return result, nil
}

func parseJSONLD(raw string) *Result {
	var node any
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &node); err != nil {
		return nil
	}
	return findProduct(node, 0)
}

// findProduct walks a JSON-LD document, including @graph wrappers and
// top-level arrays, looking for the first Product with an offer price.
func findProduct(node any, depth int) *Result {
	if depth > 4 {
		return nil
	}

	switch value := node.(type) {
	case []any:
		for _, child := range value {
			if result := findProduct(child, depth+1); result != nil {
				return result
			}
		}
	case map[string]any:
		if isType(value["@type"], "Product") {
			if result := productResult(value); result != nil {
				return result
			}
		}
		if graph, ok := value["@graph"]; ok {
			return findProduct(graph, depth+1)
		}
	}
	return nil
}

func isType(v any, want string) bool {
	switch value := v.(type) {
	case string:
		return strings.EqualFold(value, want)
	case []any:
		for _, entry := range value {
			if s, ok := entry.(string); ok && strings.EqualFold(s, want) {
				return true
			}
		}
	}
	return false
}

func productResult(product map[string]any) *Result {
	offer := firstOffer(product["offers"])
	if offer == nil {
		return nil
	}

	priceRaw, ok := offer["price"]
	if !ok {
		priceRaw = offer["lowPrice"]
	}
	price := ParsePrice(priceRaw)
	if price == nil {
		return nil
	}

	currency := "EUR"
	if c, ok := offer["priceCurrency"].(string); ok && c != "" {
		currency = c
	}

	result := &Result{
		Price:           price,
		Currency:        currency,
		PriceConfidence: StructuredConfidence,
		Source:          SourceStructured,
	}

	if availability, ok := offer["availability"].(string); ok {
		switch {
		case strings.Contains(availability, "InStock"),
			strings.Contains(availability, "LimitedAvailability"),
			strings.Contains(availability, "PreOrder"):
			inStock := true
			result.InStock = &inStock
			result.InStockConfidence = StructuredConfidence
		case strings.Contains(availability, "OutOfStock"),
			strings.Contains(availability, "SoldOut"),
			strings.Contains(availability, "Discontinued"):
			inStock := false
			result.InStock = &inStock
			result.InStockConfidence = StructuredConfidence
		}
	}
	return result
}

func firstOffer(offers any) map[string]any {
	switch value := offers.(type) {
	case map[string]any:
		return value
	case []any:
		for _, entry := range value {
			if offer, ok := entry.(map[string]any); ok {
				return offer
			}
		}
	}
	return nil
}
