package extract

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Provider identifies the inference backend in observation metadata.
const Provider = "anthropic"

// ModelRequest is one inference call. ImagePNG, when set, is sent as an
// image block ahead of the prompt.
type ModelRequest struct {
	Model     string
	MaxTokens int64
	Prompt    string
	ImagePNG  []byte
}

// ModelClient is the minimal inference surface the extraction strategies
// depend on. Tests fake it.
type ModelClient interface {
	Complete(ctx context.Context, req ModelRequest) (string, error)
}

type anthropicClient struct {
	client sdk.Client
}

var _ ModelClient = (*anthropicClient)(nil)

// NewAnthropicClient builds a ModelClient backed by the official SDK.
func NewAnthropicClient(apiKey string, timeout time.Duration) ModelClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	return &anthropicClient{
		client: sdk.NewClient(opts...),
	}
}

func (c *anthropicClient) Complete(ctx context.Context, req ModelRequest) (string, error) {
	blocks := make([]sdk.ContentBlockParamUnion, 0, 2)
	if len(req.ImagePNG) > 0 {
		encoded := base64.StdEncoding.EncodeToString(req.ImagePNG)
		blocks = append(blocks, sdk.NewImageBlockBase64("image/png", encoded))
	}
	blocks = append(blocks, sdk.NewTextBlock(req.Prompt))

	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: req.MaxTokens,
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(blocks...)},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic: create message: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}
