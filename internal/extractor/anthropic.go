package extractor

import (
	"context"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/mediflow/triage-engine/internal/model"
)

const defaultAnthropicModel = "claude-3-5-haiku-20241022"

// AnthropicExtractor extracts facts through the Anthropic messages API.
type AnthropicExtractor struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicExtractor creates an Anthropic-backed extractor.
func NewAnthropicExtractor(apiKey, modelName string) (*AnthropicExtractor, error) {
	if apiKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}
	if modelName == "" {
		modelName = defaultAnthropicModel
	}
	return &AnthropicExtractor{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  modelName,
	}, nil
}

// Name returns the provider name.
func (e *AnthropicExtractor) Name() string {
	return string(ProviderAnthropic)
}

// Extract asks the model for a JSON update and decodes it.
func (e *AnthropicExtractor) Extract(ctx context.Context, rawText string, current *model.ConversationRecord) (*model.ExtractedUpdate, error) {
	prompt := extractionInstructions + "\n\n" + buildStateContext(current) + "\nMessage:\n" + rawText

	resp, err := e.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.F(e.model),
		MaxTokens: anthropic.F(int64(1024)),
		Messages: anthropic.F([]anthropic.MessageParam{
			{
				Role: anthropic.F(anthropic.MessageParamRoleUser),
				Content: anthropic.F([]anthropic.ContentBlockParamUnion{
					anthropic.TextBlockParam{
						Type: anthropic.F(anthropic.TextBlockParamTypeText),
						Text: anthropic.F(prompt),
					},
				}),
			},
		}),
	})
	if err != nil {
		return nil, err
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			content += block.Text
		}
	}
	return parseUpdate(content)
}
