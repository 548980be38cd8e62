package service

import (
	"context"
	"encoding/json"
	"exam_proctor_backend/internal/config"
	"exam_proctor_backend/internal/model"
	"exam_proctor_backend/internal/util"
	"exam_proctor_backend/pkg/logger"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const optionsPerQuestion = 4

const generatorSystemPrompt = "You are a technical interviewer. You write multiple-choice screening exams. " +
	"Answer with a single JSON object and nothing else."

const feedbackSystemPrompt = "You are a recruiter writing short, constructive feedback for a candidate."

// ExamGenerator 调用语言模型生成两部分题目，并生成考后评语
type ExamGenerator struct {
	LLM LLMProvider
	Cfg config.ExamConfig
}

func NewExamGenerator(llm LLMProvider, cfg config.ExamConfig) *ExamGenerator {
	return &ExamGenerator{LLM: llm, Cfg: cfg}
}

type generatedQuestion struct {
	ID           string   `json:"id"`
	Prompt       string   `json:"prompt"`
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex *int     `json:"correctIndex"`
	Correct      *int     `json:"correctOptionIndex"`
}

type generatedExam struct {
	Knowledge []generatedQuestion `json:"knowledge"`
	Learning  []generatedQuestion `json:"learning"`
}

func (g *ExamGenerator) buildPrompt(profile *model.CandidateProfile, vacancy *model.Vacancy) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Candidate skills: %s\n", strings.TrimSpace(profile.Skills))
	fmt.Fprintf(&b, "Years of experience: %d\n", profile.YearsExperience)
	fmt.Fprintf(&b, "Vacancy: %s\n", strings.TrimSpace(vacancy.Title))
	fmt.Fprintf(&b, "Vacancy requirements: %s\n\n", strings.TrimSpace(vacancy.Requirements))
	fmt.Fprintf(&b, "Write exactly %d questions in \"knowledge\" that test the candidate's claimed skills, ", g.Cfg.KnowledgeQuestions)
	fmt.Fprintf(&b, "and exactly %d questions in \"learning\" that test the vacancy requirements.\n", g.Cfg.LearningQuestions)
	fmt.Fprintf(&b, "Every question has exactly %d options and one correct option.\n", optionsPerQuestion)
	b.WriteString(`Format: {"knowledge":[{"prompt":"...","options":["a","b","c","d"],"correctIndex":0}],"learning":[...]}`)
	return b.String()
}

// Generate 输出不符合结构时返回 ErrGenerationFailed，调用方不得创建会话
func (g *ExamGenerator) Generate(ctx context.Context, profile *model.CandidateProfile, vacancy *model.Vacancy) (model.ExamContent, error) {
	if strings.TrimSpace(profile.Skills) == "" || strings.TrimSpace(vacancy.Requirements) == "" {
		return model.ExamContent{}, util.ErrIncompleteProfile
	}

	if g.Cfg.GenerationTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Cfg.GenerationTimeout())
		defer cancel()
	}

	raw, err := g.LLM.Complete(ctx, generatorSystemPrompt, g.buildPrompt(profile, vacancy))
	if err != nil {
		return model.ExamContent{}, fmt.Errorf("%w: %v", util.ErrGenerationFailed, err)
	}

	content, err := ParseExamContent(raw, g.Cfg.KnowledgeQuestions, g.Cfg.LearningQuestions)
	if err != nil {
		logger.Log.Warn("Language model returned malformed exam",
			zap.String("candidate", profile.Email),
			zap.Error(err))
		return model.ExamContent{}, err
	}
	return content, nil
}

// ParseExamContent 截取第一个 '{' 到最后一个 '}'，兼容模型输出的 markdown 代码块
func ParseExamContent(raw string, knowledge, learning int) (model.ExamContent, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return model.ExamContent{}, fmt.Errorf("%w: no JSON object in response", util.ErrGenerationFailed)
	}

	var exam generatedExam
	if err := json.Unmarshal([]byte(raw[start:end+1]), &exam); err != nil {
		return model.ExamContent{}, fmt.Errorf("%w: %v", util.ErrGenerationFailed, err)
	}

	k, err := convertSection("k", exam.Knowledge, knowledge)
	if err != nil {
		return model.ExamContent{}, fmt.Errorf("%w: knowledge section: %v", util.ErrGenerationFailed, err)
	}
	l, err := convertSection("l", exam.Learning, learning)
	if err != nil {
		return model.ExamContent{}, fmt.Errorf("%w: learning section: %v", util.ErrGenerationFailed, err)
	}
	return model.ExamContent{Knowledge: k, Learning: l}, nil
}

func convertSection(prefix string, in []generatedQuestion, want int) ([]model.Question, error) {
	if len(in) != want {
		return nil, fmt.Errorf("expected %d questions, got %d", want, len(in))
	}

	out := make([]model.Question, 0, len(in))
	for i, q := range in {
		prompt := strings.TrimSpace(q.Prompt)
		if prompt == "" {
			prompt = strings.TrimSpace(q.Question)
		}
		if prompt == "" {
			return nil, fmt.Errorf("question %d has no prompt", i+1)
		}
		if len(q.Options) != optionsPerQuestion {
			return nil, fmt.Errorf("question %d has %d options", i+1, len(q.Options))
		}
		for j, opt := range q.Options {
			if strings.TrimSpace(opt) == "" {
				return nil, fmt.Errorf("question %d option %d is empty", i+1, j+1)
			}
		}

		correct := q.CorrectIndex
		if correct == nil {
			correct = q.Correct
		}
		if correct == nil || *correct < 0 || *correct >= optionsPerQuestion {
			return nil, fmt.Errorf("question %d has no valid correct index", i+1)
		}

		id := strings.TrimSpace(q.ID)
		if id == "" {
			id = fmt.Sprintf("%s%d", prefix, i+1)
		}
		out = append(out, model.Question{
			ID:                 id,
			Prompt:             prompt,
			Options:            q.Options,
			CorrectOptionIndex: *correct,
		})
	}
	return out, nil
}

// Feedback 尽力而为，失败返回空字符串
func (g *ExamGenerator) Feedback(ctx context.Context, score int, verdict model.Verdict) string {
	if g.Cfg.FeedbackTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Cfg.FeedbackTimeout())
		defer cancel()
	}

	prompt := fmt.Sprintf("The candidate scored %d out of 100 and the result is %s (pass mark %d). "+
		"Write exactly two lines of qualitative feedback, no bullet points.", score, verdict, g.Cfg.PassScore)
	text, err := g.LLM.Complete(ctx, feedbackSystemPrompt, prompt)
	if err != nil {
		logger.Log.Warn("Feedback generation failed", zap.Int("score", score), zap.Error(err))
		return ""
	}
	return strings.TrimSpace(text)
}
