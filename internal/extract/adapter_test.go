package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"priceflow/internal/page"
	"priceflow/internal/storage"
)

const amazonHTML = `<html><body>
<div id="corePrice_feature_div"><span class="a-price"><span class="a-offscreen">1 234,56 €</span></span></div>
<div id="availability"><span>En stock</span></div>
</body></html>`

func TestAdapterStrategyAmazon(t *testing.T) {
	strategy := NewAdapterStrategy(zerolog.Nop())
	capture := &page.Capture{
		RequestedURL: "https://www.amazon.fr/dp/B0D1XD1ZV3",
		FinalURL:     "https://www.amazon.fr/dp/B0D1XD1ZV3",
		HTML:         amazonHTML,
	}

	result, err := strategy.Extract(context.Background(), storage.MonitoredItem{}, capture)
	if err != nil {
		t.Fatalf("Extract 失败: %v", err)
	}
	if result.Price == nil || result.Price.String() != "1234.56" {
		t.Errorf("price = %v", result.Price)
	}
	if result.PriceConfidence != AdapterConfidence {
		t.Errorf("confidence = %v, want %v", result.PriceConfidence, AdapterConfidence)
	}
	if result.InStock == nil || !*result.InStock {
		t.Error("availability 块应给出 in stock")
	}
	if result.Source != SourceAdapter {
		t.Errorf("source = %v", result.Source)
	}
}

func TestAdapterStrategySelectorOverride(t *testing.T) {
	strategy := NewAdapterStrategy(zerolog.Nop())
	selector := ".mon-prix"
	capture := &page.Capture{
		FinalURL: "https://www.boutique-inconnue.fr/p/1",
		HTML:     `<html><body><span class="mon-prix">7€50</span></body></html>`,
	}

	result, err := strategy.Extract(context.Background(), storage.MonitoredItem{Selector: &selector}, capture)
	if err != nil {
		t.Fatalf("Extract 失败: %v", err)
	}
	if result.Price == nil || result.Price.String() != "7.5" {
		t.Errorf("price = %v, want 7.5", result.Price)
	}
}

func TestAdapterStrategyUnknownDomainSkips(t *testing.T) {
	strategy := NewAdapterStrategy(zerolog.Nop())
	capture := &page.Capture{
		FinalURL: "https://www.boutique-inconnue.fr/p/1",
		HTML:     `<html><body><span class="price">9,99 €</span></body></html>`,
	}
	_, err := strategy.Extract(context.Background(), storage.MonitoredItem{}, capture)
	if !errors.Is(err, ErrSkip) {
		t.Fatalf("未注册的域名应跳过, got %v", err)
	}
}

func TestGifiAdapterMetaPrice(t *testing.T) {
	strategy := NewAdapterStrategy(zerolog.Nop())
	capture := &page.Capture{
		FinalURL: "https://www.gifi.fr/p/coussin-123",
		HTML: `<html><body>
<meta itemprop="price" content="12.99">
<button class="add-to-cart">Ajouter au panier</button>
</body></html>`,
	}

	result, err := strategy.Extract(context.Background(), storage.MonitoredItem{}, capture)
	if err != nil {
		t.Fatalf("Extract 失败: %v", err)
	}
	if result.Price == nil || result.Price.String() != "12.99" {
		t.Errorf("price = %v", result.Price)
	}
	if result.InStock == nil || !*result.InStock {
		t.Error("加入购物车按钮存在时应视为有货")
	}
}
