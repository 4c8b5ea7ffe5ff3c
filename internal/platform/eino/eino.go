// Package eino wraps the Eino LLM components behind a small service used by
// the composition engine.
package eino

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	gemini "github.com/cloudwego/eino-ext/components/model/gemini"
	"google.golang.org/genai"
)

// Config selects and authenticates the LLM provider.
type Config struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
}

// Service holds the initialized chat model.
type Service struct {
	config       Config
	chatModel    model.BaseChatModel
	geminiClient *genai.Client
}

// NewService initializes the configured provider.
func NewService(config Config) (*Service, error) {
	service := &Service{config: config}

	switch strings.ToLower(config.Provider) {
	case "", "gemini":
		if err := service.initializeGeminiModel(); err != nil {
			return nil, fmt.Errorf("failed to initialize chat model: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported provider: %s. Supported: gemini", config.Provider)
	}
	return service, nil
}

// NewServiceWithModel wires a pre-built chat model, used by tests and by
// callers that manage their own provider setup.
func NewServiceWithModel(config Config, chatModel model.BaseChatModel) *Service {
	return &Service{config: config, chatModel: chatModel}
}

func (s *Service) initializeGeminiModel() error {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: s.config.APIKey,
	})
	if err != nil {
		return fmt.Errorf("failed to create Gemini client: %w", err)
	}
	s.geminiClient = client

	geminiModel, err := gemini.NewChatModel(context.Background(), &gemini.Config{
		Client: client,
		Model:  s.config.Model,
	})
	if err != nil {
		return fmt.Errorf("failed to create Gemini chat model: %w", err)
	}
	s.chatModel = geminiModel
	return nil
}

// ChatModel exposes the underlying model for callers composing their own
// message flows.
func (s *Service) ChatModel() model.BaseChatModel {
	return s.chatModel
}

// Generate runs one chat completion.
func (s *Service) Generate(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	if s.chatModel == nil {
		return nil, fmt.Errorf("chat model not initialized")
	}
	return s.chatModel.Generate(ctx, messages, opts...)
}

// GenerateJSON runs one completion and decodes the response as a JSON
// object, tolerating markdown code fences around the payload.
func (s *Service) GenerateJSON(ctx context.Context, messages []*schema.Message) (map[string]any, error) {
	response, err := s.Generate(ctx, messages)
	if err != nil {
		return nil, err
	}
	return DecodeJSONResponse(response.Content)
}

// DecodeJSONResponse strips markdown fences and parses the remaining text as
// a JSON object.
func DecodeJSONResponse(content string) (map[string]any, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var result map[string]any
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return nil, fmt.Errorf("invalid JSON response: %w", err)
	}
	return result, nil
}

// CountTokensInText estimates tokens at the documented ~4 chars per token.
func CountTokensInText(text string) int32 {
	return int32(len(text) / 4)
}
