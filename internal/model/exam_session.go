package model

import (
	"time"

	"gorm.io/datatypes"
)

type ExamStatus string

const (
	ExamStatusGenerated ExamStatus = "generated"
	ExamStatusFinalized ExamStatus = "finalized"
)

type Verdict string

const (
	VerdictPassed       Verdict = "passed"
	VerdictFailed       Verdict = "failed"
	VerdictDisqualified Verdict = "disqualified"
)

// Unanswered 未作答的题目在答案数组中的取值
const Unanswered = -1

// Question 单选题，固定 4 个选项
type Question struct {
	ID                 string   `json:"id"`
	Prompt             string   `json:"prompt"`
	Options            []string `json:"options"`
	CorrectOptionIndex int      `json:"correctOptionIndex"`
}

// ExamContent 两个部分：knowledge 来自候选人技能，learning 来自岗位要求
type ExamContent struct {
	Knowledge []Question `json:"knowledge"`
	Learning  []Question `json:"learning"`
}

func (c ExamContent) TotalQuestions() int {
	return len(c.Knowledge) + len(c.Learning)
}

// ExamAnswers 与题目按下标对齐的选项序号
type ExamAnswers struct {
	Knowledge []int `json:"knowledge"`
	Learning  []int `json:"learning"`
}

type ExamResult struct {
	Score        int     `json:"score"`
	Verdict      Verdict `json:"verdict"`
	FeedbackText string  `json:"feedbackText"`
	FraudReason  *string `json:"fraudReason,omitempty"`
}

// ExamSession 每个候选人至多一条，只会被写两次：创建与定稿
// swagger:model ExamSession
type ExamSession struct {
	UUIDBase
	CandidateKey string                          `gorm:"size:191;uniqueIndex;not null" json:"candidateKey"`
	VacancyCode  string                          `gorm:"size:64;index" json:"vacancyCode"`
	Status       ExamStatus                      `gorm:"size:20;index;not null" json:"status"`
	Content      datatypes.JSONType[ExamContent] `json:"-"`
	Answers      datatypes.JSONType[ExamAnswers] `json:"-"`
	Score        int                             `gorm:"default:0" json:"score"`
	Verdict      Verdict                         `gorm:"size:20" json:"verdict,omitempty"`
	Feedback     string                          `gorm:"type:text" json:"feedbackText"`
	FraudReason  *string                         `gorm:"size:255" json:"fraudReason,omitempty"`
	StartedAt    time.Time                       `json:"startedAt"`
	FinishedAt   *time.Time                      `json:"finishedAt,omitempty"`
}

func (ExamSession) TableName() string {
	return "exam_sessions"
}

func (s *ExamSession) IsFinalized() bool {
	return s.Status == ExamStatusFinalized
}

// Result 未定稿时返回 nil
func (s *ExamSession) Result() *ExamResult {
	if !s.IsFinalized() {
		return nil
	}
	return &ExamResult{
		Score:        s.Score,
		Verdict:      s.Verdict,
		FeedbackText: s.Feedback,
		FraudReason:  s.FraudReason,
	}
}
