package testutil

import (
	"context"
	"encoding/json"
	"exam_proctor_backend/internal/model"
	"fmt"
	"strings"
	"sync"
)

// FakeLLM 按 system prompt 区分题目生成与评语，记录调用次数
type FakeLLM struct {
	mu            sync.Mutex
	ExamJSON      string
	ExamErr       error
	FeedbackText  string
	FeedbackErr   error
	ExamCalls     int
	FeedbackCalls int
}

func NewFakeLLM(knowledge, learning int) *FakeLLM {
	return &FakeLLM{
		ExamJSON:     ExamJSON(knowledge, learning),
		FeedbackText: "Solid fundamentals.\nReview the vacancy topics.",
	}
}

func (f *FakeLLM) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.Contains(systemPrompt, "exam") {
		f.ExamCalls++
		return f.ExamJSON, f.ExamErr
	}
	f.FeedbackCalls++
	return f.FeedbackText, f.FeedbackErr
}

func (f *FakeLLM) Calls() (exam, feedback int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ExamCalls, f.FeedbackCalls
}

// ExamJSON 模型风格的输出：带代码块包裹，正确答案均为 0
func ExamJSON(knowledge, learning int) string {
	section := func(n int) []map[string]interface{} {
		out := make([]map[string]interface{}, n)
		for i := range out {
			out[i] = map[string]interface{}{
				"prompt":       fmt.Sprintf("Question %d", i+1),
				"options":      []string{"right", "wrong", "wrong", "wrong"},
				"correctIndex": 0,
			}
		}
		return out
	}
	body, _ := json.Marshal(map[string]interface{}{
		"knowledge": section(knowledge),
		"learning":  section(learning),
	})
	return "```json\n" + string(body) + "\n```"
}

// FakeClassifier 固定返回结果或错误
type FakeClassifier struct {
	mu     sync.Mutex
	Result model.FrameClassification
	Err    error
	Calls  int
	Block  chan struct{}
}

func (f *FakeClassifier) Classify(ctx context.Context, frame []byte, mimeType string) (*model.FrameClassification, error) {
	f.mu.Lock()
	f.Calls++
	block := f.Block
	result, err := f.Result, f.Err
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (f *FakeClassifier) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls
}
