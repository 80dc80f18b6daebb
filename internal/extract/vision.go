package extract

import (
	"context"
	"os"

	"github.com/rs/zerolog"

	"priceflow/internal/logging"
	"priceflow/internal/page"
	"priceflow/internal/storage"
)

// VisionModelStrategy sends the full-page screenshot plus page text to a
// multimodal model. Last stage in the chain: it only runs when nothing
// cheaper produced an adequate price.
type VisionModelStrategy struct {
	client    ModelClient
	model     string
	maxTokens int64
	logger    zerolog.Logger
}

var _ Strategy = (*VisionModelStrategy)(nil)

// VisionModelOptions configures a VisionModelStrategy.
type VisionModelOptions struct {
	Client    ModelClient
	Model     string
	MaxTokens int64
	Logger    zerolog.Logger
}

// NewVisionModelStrategy builds the strategy.
func NewVisionModelStrategy(opts VisionModelOptions) *VisionModelStrategy {
	return &VisionModelStrategy{
		client:    opts.Client,
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
		logger:    logging.Component(opts.Logger, "extract.vision"),
	}
}

func (s *VisionModelStrategy) Name() string { return "vision-model" }

// LastResort keeps the vision stage out of the chain once any cheaper
// stage already read a price from the page.
func (s *VisionModelStrategy) LastResort() bool { return true }

func (s *VisionModelStrategy) Extract(ctx context.Context, item storage.MonitoredItem, capture *page.Capture) (*Result, error) {
	if s.client == nil || capture.ScreenshotPath == "" {
		return nil, ErrSkip
	}

	image, err := os.ReadFile(capture.ScreenshotPath)
	if err != nil {
		s.logger.Warn().Err(err).Str("path", capture.ScreenshotPath).Msg("screenshot unreadable")
		return nil, ErrSkip
	}

	result, repaired, err := completeAndDecode(ctx, s.client, ModelRequest{
		Model:     s.model,
		MaxTokens: s.maxTokens,
		Prompt:    BuildExtractionPrompt(capture.Text, ""),
		ImagePNG:  image,
	})
	if err != nil {
		return nil, err
	}

	if result.Source == "" || result.Source == SourceText {
		result.Source = SourceBoth
	}
	result.Metadata = Metadata{
		Model:         s.model,
		Provider:      Provider,
		PromptVersion: PromptVersion,
		RepairUsed:    repaired,
		SampleCount:   1,
	}
	return result, nil
}
