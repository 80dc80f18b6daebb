package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"priceflow/internal/page"
	"priceflow/internal/storage"
)

type stubStrategy struct {
	name   string
	result *Result
	err    error
	calls  int
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Extract(context.Context, storage.MonitoredItem, *page.Capture) (*Result, error) {
	s.calls++
	return s.result, s.err
}

func priceResult(price string, confidence float64) *Result {
	value, _ := decimal.NewFromString(price)
	return &Result{Price: &value, Currency: "EUR", PriceConfidence: confidence}
}

func TestFusionFirstAdequateWins(t *testing.T) {
	first := &stubStrategy{name: "first", result: priceResult("12.99", 0.95)}
	second := &stubStrategy{name: "second", result: priceResult("99.99", 0.99)}

	fusion := NewFusion(Options{
		Strategies:         []Strategy{first, second},
		MinPriceConfidence: 0.3,
		Logger:             zerolog.Nop(),
	})

	result, err := fusion.Extract(context.Background(), storage.MonitoredItem{}, &page.Capture{})
	if err != nil {
		t.Fatalf("Extract 失败: %v", err)
	}
	if result.Price.String() != "12.99" {
		t.Errorf("应返回第一个合格结果, got %s", result.Price)
	}
	if second.calls != 0 {
		t.Error("后续策略不应被调用")
	}
}

func TestFusionSkipAndErrorFallThrough(t *testing.T) {
	skipping := &stubStrategy{name: "skip", err: ErrSkip}
	failing := &stubStrategy{name: "fail", err: errors.New("boom")}
	last := &stubStrategy{name: "last", result: priceResult("5.00", 0.8)}

	fusion := NewFusion(Options{
		Strategies:         []Strategy{skipping, failing, last},
		MinPriceConfidence: 0.3,
		Logger:             zerolog.Nop(),
	})

	result, err := fusion.Extract(context.Background(), storage.MonitoredItem{}, &page.Capture{})
	if err != nil {
		t.Fatalf("Extract 失败: %v", err)
	}
	if result == nil || result.Price.String() != "5" {
		t.Fatalf("应落到最后一个策略, got %+v", result)
	}
	if skipping.calls != 1 || failing.calls != 1 || last.calls != 1 {
		t.Error("每个策略应恰好被调用一次")
	}
}

func TestFusionKeepsLowConfidenceFallback(t *testing.T) {
	weak := &stubStrategy{name: "weak", result: priceResult("3.99", 0.2)}
	weaker := &stubStrategy{name: "weaker", result: priceResult("4.99", 0.1)}

	fusion := NewFusion(Options{
		Strategies:         []Strategy{weaker, weak},
		MinPriceConfidence: 0.3,
		Logger:             zerolog.Nop(),
	})

	result, err := fusion.Extract(context.Background(), storage.MonitoredItem{}, &page.Capture{})
	if err != nil {
		t.Fatalf("Extract 失败: %v", err)
	}
	if result == nil {
		t.Fatal("低置信度结果应作为兜底返回")
	}
	if result.Price.String() != "3.99" || result.PriceConfidence != 0.2 {
		t.Errorf("应返回置信度最高的兜底, got %s @ %v", result.Price, result.PriceConfidence)
	}
}

type lastResortStub struct {
	stubStrategy
}

func (s *lastResortStub) LastResort() bool { return true }

func TestFusionSkipsLastResortWhenPriceSeen(t *testing.T) {
	weak := &stubStrategy{name: "weak", result: priceResult("3.99", 0.2)}
	vision := &lastResortStub{stubStrategy{name: "vision", result: priceResult("8.99", 0.9)}}

	fusion := NewFusion(Options{
		Strategies:         []Strategy{weak, vision},
		MinPriceConfidence: 0.3,
		Logger:             zerolog.Nop(),
	})

	result, err := fusion.Extract(context.Background(), storage.MonitoredItem{}, &page.Capture{})
	if err != nil {
		t.Fatalf("Extract 失败: %v", err)
	}
	if vision.calls != 0 {
		t.Fatal("前序策略已读到价格时不应调用视觉策略")
	}
	if result == nil || result.Price.String() != "3.99" {
		t.Fatalf("应返回低置信度兜底, got %+v", result)
	}
}

func TestFusionRunsLastResortWithoutPriorPrice(t *testing.T) {
	stockOnly := true
	noPrice := &stubStrategy{name: "no-price", result: &Result{InStock: &stockOnly, InStockConfidence: 0.9}}
	vision := &lastResortStub{stubStrategy{name: "vision", result: priceResult("8.99", 0.9)}}

	fusion := NewFusion(Options{
		Strategies:         []Strategy{noPrice, vision},
		MinPriceConfidence: 0.3,
		Logger:             zerolog.Nop(),
	})

	result, err := fusion.Extract(context.Background(), storage.MonitoredItem{}, &page.Capture{})
	if err != nil {
		t.Fatalf("Extract 失败: %v", err)
	}
	if vision.calls != 1 {
		t.Fatal("无任何价格时视觉策略应运行")
	}
	if result == nil || result.Price.String() != "8.99" {
		t.Fatalf("应采用视觉策略结果, got %+v", result)
	}
}

func TestFusionNothingFound(t *testing.T) {
	fusion := NewFusion(Options{
		Strategies:         []Strategy{&stubStrategy{name: "skip", err: ErrSkip}},
		MinPriceConfidence: 0.3,
		Logger:             zerolog.Nop(),
	})

	result, err := fusion.Extract(context.Background(), storage.MonitoredItem{}, &page.Capture{})
	if err != nil {
		t.Fatalf("Extract 不应报错: %v", err)
	}
	if result != nil {
		t.Fatalf("无结果时应返回 nil, got %+v", result)
	}
}
