package extractor

import (
	"context"
	"errors"

	"github.com/sashabaranov/go-openai"

	"github.com/mediflow/triage-engine/internal/model"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIExtractor extracts facts through the OpenAI chat completion API.
type OpenAIExtractor struct {
	client *openai.Client
	model  string
}

// NewOpenAIExtractor creates an OpenAI-backed extractor.
func NewOpenAIExtractor(apiKey, modelName string) (*OpenAIExtractor, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	if modelName == "" {
		modelName = defaultOpenAIModel
	}
	return &OpenAIExtractor{
		client: openai.NewClient(apiKey),
		model:  modelName,
	}, nil
}

// Name returns the provider name.
func (e *OpenAIExtractor) Name() string {
	return string(ProviderOpenAI)
}

// Extract asks the model for a JSON update and decodes it.
func (e *OpenAIExtractor) Extract(ctx context.Context, rawText string, current *model.ConversationRecord) (*model.ExtractedUpdate, error) {
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: extractionInstructions + "\n\n" + buildStateContext(current),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: rawText,
			},
		},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, nil
	}
	return parseUpdate(resp.Choices[0].Message.Content)
}
