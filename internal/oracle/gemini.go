package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/Veraticus/taxomap/internal/common"
	"github.com/Veraticus/taxomap/internal/service"
)

const (
	defaultGeminiModel = "gemini-2.0-flash"
	// enumMIMEType makes the model answer with one value of the response schema's enum.
	enumMIMEType = "text/x.enum"
)

type geminiOracle struct {
	client      *genai.Client
	logger      *slog.Logger
	model       string
	retryOpts   service.RetryOptions
	temperature float32
}

func newGeminiOracle(ctx context.Context, cfg Config, logger *slog.Logger) (*geminiOracle, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: Gemini API key is required", common.ErrMissingConfig)
	}

	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &geminiOracle{
		client:      client,
		logger:      logger,
		model:       model,
		retryOpts:   retryOptions(cfg),
		temperature: float32(cfg.Temperature),
	}, nil
}

// NewSession starts an empty transcript.
func (g *geminiOracle) NewSession(_ context.Context) (Session, error) {
	return &geminiSession{oracle: g}, nil
}

type geminiSession struct {
	oracle  *geminiOracle
	history []*genai.Content
}

func (s *geminiSession) Choose(ctx context.Context, q Query) (string, error) {
	if err := validateQuery(q); err != nil {
		return "", err
	}

	g := s.oracle
	contents := append(s.history[:len(s.history):len(s.history)], genai.NewContentFromText(Prompt(q), genai.RoleUser))
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(SystemInstruction, genai.RoleUser),
		Temperature:       genai.Ptr(g.temperature),
		ResponseMIMEType:  enumMIMEType,
		ResponseSchema: &genai.Schema{
			Type: genai.TypeString,
			Enum: q.Names(),
		},
	}

	var resp *genai.GenerateContentResponse
	err := common.WithRetry(ctx, func() error {
		r, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
		if err != nil {
			var apiErr genai.APIError
			if errors.As(err, &apiErr) {
				return markRetryable(err, apiErr.Code)
			}
			return err
		}
		resp = r
		return nil
	}, g.retryOpts)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}

	name, err := Resolve(strings.TrimSpace(resp.Text()), q)
	if err != nil {
		return "", err
	}

	g.logger.Debug("oracle turn", "provider", "gemini", "label", q.Label, "options", len(q.Options), "choice", name)
	s.history = append(contents, genai.NewContentFromText(name, genai.RoleModel))
	return name, nil
}

func (s *geminiSession) Close() error {
	s.history = nil
	return nil
}
