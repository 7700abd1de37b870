// Package llm adapts model providers to prompter.Model.
package llm

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"natural/internal/logging"
	"natural/internal/prompter"
)

// OpenAIClient completes conversations with the OpenAI chat API or any
// compatible endpoint.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	temperature float32
}

// NewOpenAIClient creates a client. An empty baseURL uses the OpenAI API.
func NewOpenAIClient(apiKey, baseURL, model string, temperature float32) (*OpenAIClient, error) {
	if apiKey == "" && baseURL == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	logging.API("Initializing OpenAI client (model=%s)", model)
	return &OpenAIClient{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		temperature: temperature,
	}, nil
}

// Model returns the configured model name.
func (o *OpenAIClient) Model() string {
	return o.model
}

// Complete implements prompter.Model.
func (o *OpenAIClient) Complete(ctx context.Context, messages []prompter.Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		Temperature: o.temperature,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    openAIRole(m.Role),
			Content: m.Content,
		})
	}

	logging.APIDebug("OpenAI request: %d messages", len(req.Messages))
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		logging.APIError("OpenAI API call failed: %v", err)
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("OpenAI returned no choices")
	}
	logging.APIDebug("OpenAI response: finish_reason=%s tokens=%d", resp.Choices[0].FinishReason, resp.Usage.TotalTokens)
	return resp.Choices[0].Message.Content, nil
}

func openAIRole(r prompter.Role) string {
	switch r {
	case prompter.RoleDeveloper:
		return openai.ChatMessageRoleSystem
	case prompter.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}
