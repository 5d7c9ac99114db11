// Package anthropic wraps the official SDK behind the narrow oracle
// interface the enrichment pipeline needs: one prompt in, one text
// completion out, with usage accounting. The oracle is fallible by
// contract; callers must tolerate empty or malformed text.
package anthropic

import (
	"context"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Client defines the Anthropic API operations used by the pipeline.
type Client interface {
	CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error)
}

// MessageRequest is our own request type for CreateMessage.
type MessageRequest struct {
	Model       string
	MaxTokens   int64
	System      string
	Messages    []Message
	Temperature *float64
}

// Message represents a single conversational message.
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

// MessageResponse is our own response type from CreateMessage.
type MessageResponse struct {
	ID         string
	Model      string
	Content    []ContentBlock
	StopReason string
	Usage      TokenUsage
}

// Text concatenates the text content blocks of the response.
func (r *MessageResponse) Text() string {
	var out string
	for _, b := range r.Content {
		if b.Type == "text" {
			out += b.Text
		}
	}
	return out
}

// ContentBlock represents a block of content in a response.
type ContentBlock struct {
	Type string
	Text string
}

// TokenUsage tracks token consumption for a single call.
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
}

// LogUsage logs token consumption with structured zap fields.
func (u TokenUsage) LogUsage(model, stage string) {
	zap.L().Info("llm usage",
		zap.String("model", model),
		zap.String("stage", stage),
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
	)
}

// sdkClient implements Client using the official anthropic-sdk-go.
type sdkClient struct {
	client sdk.Client
}

// NewClient creates a new Anthropic client backed by the SDK.
func NewClient(apiKey string) Client {
	return &sdkClient{
		client: sdk.NewClient(
			option.WithAPIKey(apiKey),
		),
	}
}

func (c *sdkClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: req.MaxTokens,
		Messages:  toSDKMessages(req.Messages),
	}

	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}

	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: create message")
	}

	return fromSDKMessage(msg), nil
}

func toSDKMessages(msgs []Message) []sdk.MessageParam {
	out := make([]sdk.MessageParam, len(msgs))
	for i, m := range msgs {
		block := sdk.NewTextBlock(m.Content)
		switch m.Role {
		case "assistant":
			out[i] = sdk.NewAssistantMessage(block)
		default:
			out[i] = sdk.NewUserMessage(block)
		}
	}
	return out
}

func fromSDKMessage(msg *sdk.Message) *MessageResponse {
	blocks := make([]ContentBlock, 0, len(msg.Content))
	for _, b := range msg.Content {
		blocks = append(blocks, ContentBlock{
			Type: b.Type,
			Text: b.Text,
		})
	}

	return &MessageResponse{
		ID:         msg.ID,
		Model:      string(msg.Model),
		Content:    blocks,
		StopReason: string(msg.StopReason),
		Usage: TokenUsage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}
}
