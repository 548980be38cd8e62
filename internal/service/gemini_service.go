package service

import (
	"context"
	"exam_proctor_backend/pkg/logger"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GeminiService 同时实现 LLMProvider 与帧识别（见 vision_service.go）
type GeminiService struct {
	Client *genai.Client
	Model  string
}

func NewGeminiService(ctx context.Context, apiKey, model string) (*GeminiService, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	if model == "" {
		model = "gemini-2.0-flash"
	}

	logger.Log.Info("Gemini client initialized", zap.String("model", model))
	return &GeminiService{Client: client, Model: model}, nil
}

func (s *GeminiService) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{}
	if systemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	result, err := s.Client.Models.GenerateContent(ctx, s.Model, genai.Text(userPrompt), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	text := result.Text()
	if text == "" {
		return "", fmt.Errorf("gemini returned no text content")
	}
	return text, nil
}
