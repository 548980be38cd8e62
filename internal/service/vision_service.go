package service

import (
	"bytes"
	"context"
	"encoding/json"
	"exam_proctor_backend/internal/config"
	"exam_proctor_backend/internal/model"
	"exam_proctor_backend/internal/util"
	"fmt"
	"io"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// FrameClassifier 单帧识别，调用之间不保留状态
type FrameClassifier interface {
	Classify(ctx context.Context, frame []byte, mimeType string) (*model.FrameClassification, error)
}

func NewFrameClassifier(ctx context.Context, cfg config.VisionConfig) (FrameClassifier, error) {
	switch cfg.Provider {
	case "", "http":
		return NewHTTPClassifier(cfg), nil
	case "gemini":
		g, err := NewGeminiService(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		return &GeminiClassifier{Gemini: g, PersonMinConfidence: cfg.PersonMinConfidence}, nil
	default:
		return nil, fmt.Errorf("unsupported vision provider %q", cfg.Provider)
	}
}

// HTTPClassifier 对接图像分析接口：POST 原始图片，返回 objects 与 tags
type HTTPClassifier struct {
	Endpoint            string
	APIKey              string
	PersonMinConfidence float64
	client              *http.Client
}

func NewHTTPClassifier(cfg config.VisionConfig) *HTTPClassifier {
	return &HTTPClassifier{
		Endpoint:            cfg.Endpoint,
		APIKey:              cfg.APIKey,
		PersonMinConfidence: cfg.PersonMinConfidence,
		client:              &http.Client{},
	}
}

type visionEntity struct {
	Object     string  `json:"object"`
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

func (e visionEntity) label() string {
	if e.Object != "" {
		return e.Object
	}
	return e.Name
}

type visionResponse struct {
	Objects []visionEntity `json:"objects"`
	Tags    []visionEntity `json:"tags"`
}

func (c *HTTPClassifier) Classify(ctx context.Context, frame []byte, mimeType string) (*model.FrameClassification, error) {
	if c.Endpoint == "" {
		return nil, fmt.Errorf("%w: vision endpoint not configured", util.ErrClassificationUnavailable)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrClassificationUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if c.APIKey != "" {
		req.Header.Set("Ocp-Apim-Subscription-Key", c.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrClassificationUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: vision API status %d: %s", util.ErrClassificationUnavailable, resp.StatusCode, string(body))
	}

	var parsed visionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrClassificationUnavailable, err)
	}
	return normalize(parsed, c.PersonMinConfidence), nil
}

// normalize person 单独计数，其余 objects 与 tags 合并为检测列表
func normalize(resp visionResponse, personMinConfidence float64) *model.FrameClassification {
	fc := &model.FrameClassification{DetectedObjectTags: []model.DetectedObject{}}
	for _, o := range resp.Objects {
		name := strings.ToLower(strings.TrimSpace(o.label()))
		if name == "person" {
			if o.Confidence >= personMinConfidence {
				fc.PersonCount++
			}
			continue
		}
		fc.DetectedObjectTags = append(fc.DetectedObjectTags, model.DetectedObject{
			Name:       name,
			Confidence: o.Confidence,
			Source:     "object",
		})
	}
	for _, t := range resp.Tags {
		fc.DetectedObjectTags = append(fc.DetectedObjectTags, model.DetectedObject{
			Name:       strings.ToLower(strings.TrimSpace(t.label())),
			Confidence: t.Confidence,
			Source:     "tag",
		})
	}
	return fc
}

const geminiVisionPrompt = `Analyze this webcam frame from an online exam. List every person and every object you can see. ` +
	`Reply with JSON only: {"objects":[{"object":"person","confidence":0.98}],"tags":[{"name":"indoor","confidence":0.9}]}`

// GeminiClassifier 使用多模态模型完成同样的识别契约
type GeminiClassifier struct {
	Gemini              *GeminiService
	PersonMinConfidence float64
}

func (c *GeminiClassifier) Classify(ctx context.Context, frame []byte, mimeType string) (*model.FrameClassification, error) {
	if mimeType == "" {
		mimeType = util.MimeJPEG
	}
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(geminiVisionPrompt),
			genai.NewPartFromBytes(frame, mimeType),
		}, genai.RoleUser),
	}

	result, err := c.Gemini.Client.Models.GenerateContent(ctx, c.Gemini.Model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrClassificationUnavailable, err)
	}

	text := result.Text()
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON in vision response", util.ErrClassificationUnavailable)
	}

	var parsed visionResponse
	if err := json.Unmarshal([]byte(text[start:end+1]), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrClassificationUnavailable, err)
	}
	return normalize(parsed, c.PersonMinConfidence), nil
}
