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

// hintSelectors are generic price locations swept before the model call.
// A hit is only a hint, never a result: the model still arbitrates.
var hintSelectors = []string{
	"[itemprop='price']",
	".a-price .a-offscreen",
	".product-price",
	".current-price",
	".price__amount",
	".price",
	"[data-price]",
}

// TextModelStrategy sends the denoised page text to a text model with the
// schema-first extraction prompt, repairing malformed replies once.
type TextModelStrategy struct {
	client    ModelClient
	model     string
	maxTokens int64
	logger    zerolog.Logger
}

var _ Strategy = (*TextModelStrategy)(nil)

// TextModelOptions configures a TextModelStrategy.
type TextModelOptions struct {
	Client    ModelClient
	Model     string
	MaxTokens int64
	Logger    zerolog.Logger
}

// NewTextModelStrategy builds the strategy.
func NewTextModelStrategy(opts TextModelOptions) *TextModelStrategy {
	return &TextModelStrategy{
		client:    opts.Client,
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
		logger:    logging.Component(opts.Logger, "extract.text"),
	}
}

func (s *TextModelStrategy) Name() string { return "text-model" }

func (s *TextModelStrategy) Extract(ctx context.Context, item storage.MonitoredItem, capture *page.Capture) (*Result, error) {
	if s.client == nil || strings.TrimSpace(capture.Text) == "" {
		return nil, ErrSkip
	}

	hint := markupPriceHint(capture.HTML)
	prompt := BuildExtractionPrompt(capture.Text, hint)

	result, repaired, err := completeAndDecode(ctx, s.client, ModelRequest{
		Model:     s.model,
		MaxTokens: s.maxTokens,
		Prompt:    prompt,
	})
	if err != nil {
		return nil, err
	}

	result.Source = SourceText
	result.Metadata = Metadata{
		Model:         s.model,
		Provider:      Provider,
		PromptVersion: PromptVersion,
		RepairUsed:    repaired,
		SampleCount:   1,
	}
	if hint != "" {
		s.logger.Debug().Str("hint", hint).Msg("markup hint included")
	}
	return result, nil
}

// markupPriceHint sweeps generic selectors over the raw HTML and returns the
// first parseable price as display text.
func markupPriceHint(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	for _, selector := range hintSelectors {
		sel := doc.Find(selector).First()
		candidate := strings.TrimSpace(sel.Text())
		if candidate == "" {
			if content, ok := sel.Attr("content"); ok {
				candidate = strings.TrimSpace(content)
			}
		}
		if candidate == "" {
			continue
		}
		if price := ParsePrice(candidate); price != nil {
			return price.StringFixed(2) + " €"
		}
	}
	return ""
}

// completeAndDecode runs one inference call and, when the reply does not
// decode, one repair round trip. Returns whether repair was used.
func completeAndDecode(ctx context.Context, client ModelClient, req ModelRequest) (*Result, bool, error) {
	reply, err := client.Complete(ctx, req)
	if err != nil {
		return nil, false, err
	}

	result, decodeErr := DecodePayload(reply)
	if decodeErr == nil {
		return result, false, nil
	}

	repairReply, err := client.Complete(ctx, ModelRequest{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
		Prompt:    BuildRepairPrompt(reply),
	})
	if err != nil {
		return nil, false, err
	}
	result, decodeErr = DecodePayload(repairReply)
	if decodeErr != nil {
		return nil, true, decodeErr
	}
	return result, true, nil
}
