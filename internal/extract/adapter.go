package extract

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"priceflow/internal/logging"
	"priceflow/internal/page"
	"priceflow/internal/storage"
)

// AdapterConfidence is assigned to any price found by a deterministic site
// adapter. High but below 1.0 so a later manual correction can outrank it.
const AdapterConfidence = 0.95

// SiteAdapter parses one retailer's markup deterministically.
type SiteAdapter interface {
	Domain() string
	ParseDetails(doc *goquery.Document) *Result
}

// AdapterStrategy tries the item's selector override first, then the
// registered adapter for the page's domain.
type AdapterStrategy struct {
	registry map[string]SiteAdapter
	logger   zerolog.Logger
}

var _ Strategy = (*AdapterStrategy)(nil)

// NewAdapterStrategy builds the strategy with all built-in adapters
// registered.
func NewAdapterStrategy(logger zerolog.Logger) *AdapterStrategy {
	s := &AdapterStrategy{
		registry: make(map[string]SiteAdapter),
		logger:   logging.Component(logger, "extract.adapter"),
	}
	s.Register(amazonAdapter{})
	s.Register(gifiAdapter{})
	return s
}

// Register adds or replaces the adapter for a domain.
func (s *AdapterStrategy) Register(adapter SiteAdapter) {
	s.registry[adapter.Domain()] = adapter
}

func (s *AdapterStrategy) Name() string { return "adapter" }

func (s *AdapterStrategy) Extract(ctx context.Context, item storage.MonitoredItem, capture *page.Capture) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(capture.HTML))
	if err != nil {
		return nil, ErrSkip
	}

	if item.Selector != nil && *item.Selector != "" {
		if price := ParsePrice(firstText(doc, *item.Selector)); price != nil {
			return &Result{
				Price:           price,
				Currency:        "EUR",
				PriceConfidence: AdapterConfidence,
				Source:          SourceAdapter,
			}, nil
		}
	}

	domain := page.Domain(capture.FinalURL)
	if domain == "" {
		domain = page.Domain(capture.RequestedURL)
	}
	adapter, ok := s.registry[domain]
	if !ok {
		return nil, ErrSkip
	}

	result := adapter.ParseDetails(doc)
	if result == nil || result.Price == nil {
		return nil, ErrSkip
	}
	result.Source = SourceAdapter
	result.PriceConfidence = AdapterConfidence
	if result.Currency == "" {
		result.Currency = "EUR"
	}
	return result, nil
}

func firstText(doc *goquery.Document, selector string) string {
	return strings.TrimSpace(doc.Find(selector).First().Text())
}

func firstAttr(doc *goquery.Document, selector, attr string) string {
	value, _ := doc.Find(selector).First().Attr(attr)
	return strings.TrimSpace(value)
}

// amazonAdapter reads the offer block on amazon.fr product pages.
type amazonAdapter struct{}

func (amazonAdapter) Domain() string { return "amazon.fr" }

func (amazonAdapter) ParseDetails(doc *goquery.Document) *Result {
	raw := firstText(doc, "#corePrice_feature_div .a-price .a-offscreen")
	if raw == "" {
		raw = firstText(doc, ".a-price .a-offscreen")
	}
	if raw == "" {
		raw = firstText(doc, "#priceblock_ourprice")
	}
	price := ParsePrice(raw)
	if price == nil {
		return nil
	}

	result := &Result{Price: price, Currency: "EUR"}
	availability := strings.ToLower(firstText(doc, "#availability"))
	if availability != "" {
		if stock := ParseStock(availability); stock != nil {
			result.InStock = stock
			result.InStockConfidence = AdapterConfidence
		} else if strings.Contains(availability, "en stock") {
			inStock := true
			result.InStock = &inStock
			result.InStockConfidence = AdapterConfidence
		}
	}
	return result
}

// gifiAdapter reads gifi.fr product pages, which carry the price in a meta
// itemprop as well as the visible block.
type gifiAdapter struct{}

func (gifiAdapter) Domain() string { return "gifi.fr" }

func (gifiAdapter) ParseDetails(doc *goquery.Document) *Result {
	raw := firstAttr(doc, "[itemprop='price']", "content")
	if raw == "" {
		raw = firstText(doc, "[itemprop='price']")
	}
	if raw == "" {
		raw = firstText(doc, ".product-price .price, .prices .price")
	}
	price := ParsePrice(raw)
	if price == nil {
		return nil
	}

	result := &Result{Price: price, Currency: "EUR"}
	if firstText(doc, ".add-to-cart, button[data-button-action='add-to-cart']") != "" {
		inStock := true
		result.InStock = &inStock
		result.InStockConfidence = AdapterConfidence
	}
	return result
}
