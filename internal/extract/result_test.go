package extract

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParsePriceFrenchFormats(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{"1 234,56 €", "1234.56"},
		{"1 234,56 €", "1234.56"}, // non-breaking space
		{"12,99€", "12.99"},
		{"3€99", "3.99"},
		{"1.234,56", "1234.56"},
		{"89.99", "89.99"},
		{"0,99 €", "0.99"},
		{12.5, "12.5"},
		{7, "7"},
	}
	for _, tc := range cases {
		got := ParsePrice(tc.in)
		if got == nil {
			t.Errorf("ParsePrice(%v) = nil, want %s", tc.in, tc.want)
			continue
		}
		want, _ := decimal.NewFromString(tc.want)
		if !got.Equal(want) {
			t.Errorf("ParsePrice(%v) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestParsePriceGarbage(t *testing.T) {
	for _, in := range []any{nil, "", "null", "gratuit", "1.2.3.4", []int{1}, "€"} {
		if got := ParsePrice(in); got != nil {
			t.Errorf("ParsePrice(%v) = %s, want nil", in, got)
		}
	}
}

func TestParseStock(t *testing.T) {
	truthy := []any{true, "true", "yes", "in stock", "available", "1", "En stock", "disponible", 2.0}
	for _, in := range truthy {
		got := ParseStock(in)
		if got == nil || !*got {
			t.Errorf("ParseStock(%v) 应为 true", in)
		}
	}

	falsy := []any{false, "false", "no", "out of stock", "unavailable", "0", "Rupture", "indisponible", "épuisé", 0.0}
	for _, in := range falsy {
		got := ParseStock(in)
		if got == nil || *got {
			t.Errorf("ParseStock(%v) 应为 false", in)
		}
	}

	for _, in := range []any{nil, "null", "", "peut-être", []string{"x"}} {
		if got := ParseStock(in); got != nil {
			t.Errorf("ParseStock(%v) 应为 nil, got %v", in, *got)
		}
	}
}

func TestConfidenceClamping(t *testing.T) {
	cases := []struct {
		in   any
		want float64
	}{
		{0.7, 0.7},
		{1.5, 1.0},
		{-0.3, 0.0},
		{"0.42", 0.42},
		{"2", 1.0},
		{nil, 0.0},
		{"haute", 0.0},
		{map[string]int{}, 0.0},
	}
	for _, tc := range cases {
		if got := Confidence(tc.in); got != tc.want {
			t.Errorf("Confidence(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestDecodePayload(t *testing.T) {
	reply := "```json\n{\"price\": \"12,99 €\", \"currency\": \"EUR\", \"in_stock\": \"yes\", \"price_confidence\": 1.2, \"in_stock_confidence\": \"0.8\", \"source_type\": \"both\"}\n```"
	result, err := DecodePayload(reply)
	if err != nil {
		t.Fatalf("DecodePayload 失败: %v", err)
	}
	if result.Price == nil || result.Price.String() != "12.99" {
		t.Errorf("price = %v, want 12.99", result.Price)
	}
	if result.PriceConfidence != 1.0 {
		t.Errorf("price confidence 应被夹取到 1.0, got %v", result.PriceConfidence)
	}
	if result.InStock == nil || !*result.InStock {
		t.Error("in_stock 应为 true")
	}
	if result.InStockConfidence != 0.8 {
		t.Errorf("in_stock_confidence = %v", result.InStockConfidence)
	}
	if result.Source != SourceBoth {
		t.Errorf("source = %v", result.Source)
	}
}

func TestDecodePayloadWithProse(t *testing.T) {
	reply := `Here is the extraction: {"price": null, "in_stock": null, "price_confidence": 0, "in_stock_confidence": 0, "source_type": "text"} Hope this helps!`
	result, err := DecodePayload(reply)
	if err != nil {
		t.Fatalf("带前后缀文本的回复应能解码: %v", err)
	}
	if result.Price != nil {
		t.Errorf("price 应为 nil, got %s", result.Price)
	}
	if result.Currency != "EUR" {
		t.Errorf("缺省货币应为 EUR, got %s", result.Currency)
	}
	if result.Source != SourceText {
		t.Errorf("source = %v", result.Source)
	}
}

func TestDecodePayloadInvalid(t *testing.T) {
	if _, err := DecodePayload("sorry, I cannot read this page"); err == nil {
		t.Fatal("无 JSON 的回复应返回错误")
	}
	if _, err := DecodePayload("{broken: json"); err == nil {
		t.Fatal("损坏的 JSON 应返回错误")
	}
}
