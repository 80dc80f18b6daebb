package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// PromptVersion tags every observation with the prompt generation that
// produced it, so history stays comparable across prompt changes.
const PromptVersion = "v2.0"

// SourceKind identifies which extraction stage produced a result.
type SourceKind string

const (
	SourceAdapter    SourceKind = "adapter"
	SourceStructured SourceKind = "structured"
	SourceText       SourceKind = "text"
	SourceImage      SourceKind = "image"
	SourceBoth       SourceKind = "both"
)

// Result is one normalized extraction outcome. Stock is tri-state: nil means
// the page gave no usable signal either way.
type Result struct {
	Price             *decimal.Decimal
	Currency          string
	InStock           *bool
	PriceConfidence   float64
	InStockConfidence float64
	Source            SourceKind
	Metadata          Metadata
}

// Metadata records how a model-based extraction was obtained.
type Metadata struct {
	Model         string
	Provider      string
	PromptVersion string
	RepairUsed    bool
	MultiSample   bool
	SampleCount   int
}

var (
	splitPricePattern = regexp.MustCompile(`^(\d+)€(\d{1,2})$`)
	nonPriceChars     = regexp.MustCompile(`[^\d.]`)
)

// ParsePrice normalizes a price in any of the shapes models and pages emit:
// numbers, or strings in French retail formats ("1 234,56 €", "12,99€",
// "3€99", "1.234,56", "89.99"). Returns nil for null, empty, or garbage.
func ParsePrice(v any) *decimal.Decimal {
	switch value := v.(type) {
	case nil:
		return nil
	case float64:
		price := decimal.NewFromFloat(value)
		return &price
	case int:
		price := decimal.NewFromInt(int64(value))
		return &price
	case int64:
		price := decimal.NewFromInt(value)
		return &price
	case json.Number:
		return ParsePrice(string(value))
	case string:
		return parsePriceString(value)
	default:
		return nil
	}
}

func parsePriceString(raw string) *decimal.Decimal {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" || cleaned == "null" {
		return nil
	}
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")

	// "3€99" puts the cents after the euro sign.
	if match := splitPricePattern.FindStringSubmatch(cleaned); match != nil {
		cleaned = match[1] + "." + match[2]
	}

	hasComma := strings.Contains(cleaned, ",")
	hasDot := strings.Contains(cleaned, ".")
	switch {
	case hasComma && hasDot:
		// "1.234,56": dots are thousand separators.
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	case hasComma:
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	}

	cleaned = nonPriceChars.ReplaceAllString(cleaned, "")
	if cleaned == "" || strings.Count(cleaned, ".") > 1 {
		return nil
	}

	price, err := decimal.NewFromString(cleaned)
	if err != nil {
		return nil
	}
	return &price
}

var (
	stockTrueWords = map[string]bool{
		"true": true, "yes": true, "in stock": true, "available": true,
		"1": true, "en stock": true, "disponible": true,
	}
	stockFalseWords = map[string]bool{
		"false": true, "no": true, "out of stock": true, "unavailable": true,
		"0": true, "rupture": true, "rupture de stock": true,
		"indisponible": true, "épuisé": true,
	}
)

// ParseStock maps the loose stock signals models emit to a tri-state bool.
func ParseStock(v any) *bool {
	switch value := v.(type) {
	case nil:
		return nil
	case bool:
		return &value
	case float64:
		result := value != 0
		return &result
	case string:
		lowered := strings.ToLower(strings.TrimSpace(value))
		if lowered == "null" || lowered == "" {
			return nil
		}
		if stockTrueWords[lowered] {
			result := true
			return &result
		}
		if stockFalseWords[lowered] {
			result := false
			return &result
		}
		return nil
	default:
		return nil
	}
}

// Confidence clamps any confidence-shaped value into [0, 1]. Out-of-range
// numbers clamp, strings parse, everything else is zero.
func Confidence(v any) float64 {
	switch value := v.(type) {
	case nil:
		return 0
	case float64:
		return clamp01(value)
	case int:
		return clamp01(float64(value))
	case json.Number:
		parsed, err := value.Float64()
		if err != nil {
			return 0
		}
		return clamp01(parsed)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return 0
		}
		return clamp01(parsed)
	default:
		return 0
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

type rawExtraction struct {
	Price             any    `json:"price"`
	Currency          string `json:"currency"`
	InStock           any    `json:"in_stock"`
	PriceConfidence   any    `json:"price_confidence"`
	InStockConfidence any    `json:"in_stock_confidence"`
	SourceType        string `json:"source_type"`
}

// DecodePayload turns a raw model reply into a normalized Result. It
// tolerates markdown fences and leading prose around the JSON object.
func DecodePayload(raw string) (*Result, error) {
	body := extractJSONObject(raw)
	if body == "" {
		return nil, fmt.Errorf("no JSON object in model reply")
	}

	var payload rawExtraction
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return nil, fmt.Errorf("decode model reply: %w", err)
	}

	currency := payload.Currency
	if currency == "" {
		currency = "EUR"
	}

	source := SourceKind(payload.SourceType)
	switch source {
	case SourceText, SourceImage, SourceBoth:
	default:
		source = SourceBoth
	}

	return &Result{
		Price:             ParsePrice(payload.Price),
		Currency:          currency,
		InStock:           ParseStock(payload.InStock),
		PriceConfidence:   Confidence(payload.PriceConfidence),
		InStockConfidence: Confidence(payload.InStockConfidence),
		Source:            source,
	}, nil
}

func extractJSONObject(raw string) string {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return cleaned[start : end+1]
}
