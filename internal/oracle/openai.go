package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/Veraticus/taxomap/internal/common"
	"github.com/Veraticus/taxomap/internal/service"
)

const defaultOpenAIModel = openai.GPT4oMini

type openAIOracle struct {
	client      *openai.Client
	logger      *slog.Logger
	model       string
	retryOpts   service.RetryOptions
	temperature float32
}

func newOpenAIOracle(cfg Config, logger *slog.Logger) (*openAIOracle, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: OpenAI API key is required", common.ErrMissingConfig)
	}

	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &openAIOracle{
		client:      openai.NewClientWithConfig(clientConfig),
		logger:      logger,
		model:       model,
		retryOpts:   retryOptions(cfg),
		temperature: float32(cfg.Temperature),
	}, nil
}

// NewSession starts a transcript holding only the system message.
func (o *openAIOracle) NewSession(_ context.Context) (Session, error) {
	return &openAISession{
		oracle: o,
		messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemInstruction},
		},
	}, nil
}

type openAISession struct {
	oracle   *openAIOracle
	messages []openai.ChatCompletionMessage
}

type openAIChoice struct {
	Choice string `json:"choice"`
}

func (s *openAISession) Choose(ctx context.Context, q Query) (string, error) {
	if err := validateQuery(q); err != nil {
		return "", err
	}

	o := s.oracle
	schema := jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"choice": {Type: jsonschema.String, Enum: q.Names()},
		},
		Required:             []string{"choice"},
		AdditionalProperties: false,
	}

	messages := append(s.messages[:len(s.messages):len(s.messages)], openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: Prompt(q),
	})
	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    messages,
		Temperature: o.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "option_choice",
				Schema: &schema,
				Strict: true,
			},
		},
	}

	var resp openai.ChatCompletionResponse
	err := common.WithRetry(ctx, func() error {
		r, err := o.client.CreateChatCompletion(ctx, req)
		if err != nil {
			var apiErr *openai.APIError
			if errors.As(err, &apiErr) {
				return markRetryable(err, apiErr.HTTPStatusCode)
			}
			var reqErr *openai.RequestError
			if errors.As(err, &reqErr) {
				return markRetryable(err, reqErr.HTTPStatusCode)
			}
			return err
		}
		resp = r
		return nil
	}, o.retryOpts)
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no completion choices returned", ErrOptionNotOffered)
	}

	content := resp.Choices[0].Message.Content
	var parsed openAIChoice
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return "", fmt.Errorf("%w: unparseable answer %q: %v", ErrOptionNotOffered, content, err)
	}

	name, err := Resolve(parsed.Choice, q)
	if err != nil {
		return "", err
	}

	o.logger.Debug("oracle turn", "provider", "openai", "label", q.Label, "options", len(q.Options), "choice", name)
	s.messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: content,
	})
	return name, nil
}

func (s *openAISession) Close() error {
	s.messages = nil
	return nil
}
