package service

import (
	"context"
	"errors"
	"exam_proctor_backend/internal/config"
	"exam_proctor_backend/internal/model"
	"exam_proctor_backend/internal/repository"
	"exam_proctor_backend/internal/util"
	"exam_proctor_backend/pkg/logger"
	"exam_proctor_backend/pkg/monitoring"
	"exam_proctor_backend/pkg/tracing"
	"fmt"
	"math"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// ExamService 考试生命周期：生成或恢复、提交评分、查询结果
type ExamService struct {
	SessionRepo   *repository.ExamSessionRepository
	CandidateRepo *repository.CandidateRepository
	Generator     *ExamGenerator
	Lock          *repository.GenerationLock
	Publisher     EventPublisher
	Cfg           config.ExamConfig
	now           func() time.Time
}

func NewExamService(
	sessionRepo *repository.ExamSessionRepository,
	candidateRepo *repository.CandidateRepository,
	generator *ExamGenerator,
	lock *repository.GenerationLock,
	publisher EventPublisher,
	cfg config.ExamConfig,
) *ExamService {
	if publisher == nil {
		publisher = NoopPublisher{}
	}
	return &ExamService{
		SessionRepo:   sessionRepo,
		CandidateRepo: candidateRepo,
		Generator:     generator,
		Lock:          lock,
		Publisher:     publisher,
		Cfg:           cfg,
		now:           time.Now,
	}
}

// SanitizedQuestion 下发给考生的题目，不含正确答案
type SanitizedQuestion struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
}

type SanitizedContent struct {
	Knowledge []SanitizedQuestion `json:"knowledge"`
	Learning  []SanitizedQuestion `json:"learning"`
}

type ExamView struct {
	ExamID           string           `json:"examId"`
	CandidateName    string           `json:"candidateName"`
	Questions        SanitizedContent `json:"questions"`
	Resumed          bool             `json:"resumed"`
	StartedAt        time.Time        `json:"startedAt"`
	DurationSeconds  int              `json:"durationSeconds"`
	RemainingSeconds int              `json:"remainingSeconds"`
}

type SubmitRequest struct {
	Candidate   string            `json:"candidate" binding:"required"`
	Answers     model.ExamAnswers `json:"answers"`
	FraudReason *string           `json:"fraudReason"`
}

func sanitizeSection(qs []model.Question) []SanitizedQuestion {
	out := make([]SanitizedQuestion, 0, len(qs))
	for _, q := range qs {
		out = append(out, SanitizedQuestion{
			ID:      q.ID,
			Prompt:  q.Prompt,
			Options: q.Options,
		})
	}
	return out
}

func Sanitize(content model.ExamContent) SanitizedContent {
	return SanitizedContent{
		Knowledge: sanitizeSection(content.Knowledge),
		Learning:  sanitizeSection(content.Learning),
	}
}

// Remaining 倒计时以持久化的 startedAt 为准，断线重连不会重置
func (s *ExamService) Remaining(session *model.ExamSession) time.Duration {
	remaining := session.StartedAt.Add(s.Cfg.Duration()).Sub(s.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (s *ExamService) view(session *model.ExamSession, name string, resumed bool) *ExamView {
	return &ExamView{
		ExamID:           session.ID,
		CandidateName:    name,
		Questions:        Sanitize(session.Content.Data()),
		Resumed:          resumed,
		StartedAt:        session.StartedAt,
		DurationSeconds:  int(s.Cfg.Duration().Seconds()),
		RemainingSeconds: int(s.Remaining(session).Seconds()),
	}
}

// GenerateOrResume 已有未定稿会话直接返回（不再调用模型）；已定稿则拒绝重考
func (s *ExamService) GenerateOrResume(ctx context.Context, candidateKey string) (*ExamView, error) {
	ctx, span := tracing.Tracer.Start(ctx, "ExamService.GenerateOrResume")
	defer span.End()
	span.SetAttributes(attribute.String("exam.candidate", candidateKey))

	view, err := s.generateOrResume(ctx, candidateKey)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Bool("exam.resumed", view.Resumed))
	monitoring.ExamsGenerated.WithLabelValues(strconv.FormatBool(view.Resumed)).Inc()
	return view, nil
}

func (s *ExamService) generateOrResume(ctx context.Context, candidateKey string) (*ExamView, error) {
	profile, err := s.CandidateRepo.FindProfile(candidateKey)
	if err != nil {
		return nil, err
	}

	if existing, err := s.existingSession(candidateKey); err != nil || existing != nil {
		if err != nil {
			return nil, err
		}
		return s.view(existing, profile.Name, true), nil
	}

	vacancy, err := s.CandidateRepo.FindVacancy(profile.VacancyCode)
	if err != nil {
		return nil, err
	}

	release, err := s.Lock.Acquire(ctx, candidateKey)
	if err != nil {
		return nil, fmt.Errorf("acquire generation lock: %w", err)
	}
	defer release()

	// 等锁期间另一个请求可能已经生成完毕
	if existing, err := s.existingSession(candidateKey); err != nil || existing != nil {
		if err != nil {
			return nil, err
		}
		return s.view(existing, profile.Name, true), nil
	}

	content, err := s.Generator.Generate(ctx, profile, vacancy)
	if err != nil {
		return nil, err
	}

	session, created, err := s.SessionRepo.CreateIfAbsent(candidateKey, vacancy.Code, content)
	if err != nil {
		return nil, err
	}
	if !created && session.IsFinalized() {
		return nil, util.ErrExamConflict
	}

	logger.Log.Info("Exam session ready",
		zap.String("candidate", candidateKey),
		zap.String("examId", session.ID),
		zap.Bool("created", created))
	return s.view(session, profile.Name, !created), nil
}

// existingSession 无会话时返回 (nil, nil)
func (s *ExamService) existingSession(candidateKey string) (*model.ExamSession, error) {
	session, err := s.SessionRepo.FindByCandidateKey(candidateKey)
	if err != nil {
		if errors.Is(err, util.ErrSessionNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if session.IsFinalized() {
		return nil, util.ErrExamConflict
	}
	return session, nil
}

// Session 供监考通道读取当前会话
func (s *ExamService) Session(candidateKey string) (*model.ExamSession, error) {
	return s.SessionRepo.FindByCandidateKey(candidateKey)
}

// Grade 按位置比对答案；缺失、-1、越界都算错
func Grade(content model.ExamContent, answers model.ExamAnswers) (correct, total int) {
	count := func(qs []model.Question, chosen []int) int {
		n := 0
		for i, q := range qs {
			if i >= len(chosen) {
				break
			}
			if chosen[i] != model.Unanswered && chosen[i] == q.CorrectOptionIndex {
				n++
			}
		}
		return n
	}
	correct = count(content.Knowledge, answers.Knowledge) + count(content.Learning, answers.Learning)
	return correct, content.TotalQuestions()
}

func Score(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(correct) / float64(total)))
}

func (s *ExamService) VerdictFor(score int) model.Verdict {
	if score >= s.Cfg.PassScore {
		return model.VerdictPassed
	}
	return model.VerdictFailed
}

func DisqualificationFeedback(reason string) string {
	return fmt.Sprintf("Exam terminated: integrity violation detected (%s). The answers were not graded.", reason)
}

// Submit 定稿考试；重复提交返回已存储的结果而不重新评分
func (s *ExamService) Submit(ctx context.Context, candidateKey string, answers model.ExamAnswers, fraudReason *string) (*model.ExamResult, error) {
	ctx, span := tracing.Tracer.Start(ctx, "ExamService.Submit")
	defer span.End()
	span.SetAttributes(
		attribute.String("exam.candidate", candidateKey),
		attribute.Bool("exam.fraud", fraudReason != nil),
	)

	result, err := s.submit(ctx, candidateKey, answers, fraudReason)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("exam.score", result.Score))
	return result, nil
}

func (s *ExamService) submit(ctx context.Context, candidateKey string, answers model.ExamAnswers, fraudReason *string) (*model.ExamResult, error) {
	session, err := s.SessionRepo.FindByCandidateKey(candidateKey)
	if err != nil {
		return nil, err
	}
	if session.IsFinalized() {
		logger.Log.Info("Duplicate submission ignored", zap.String("candidate", candidateKey))
		return session.Result(), nil
	}

	var result model.ExamResult
	if fraudReason != nil {
		reason := *fraudReason
		result = model.ExamResult{
			Score:        0,
			Verdict:      model.VerdictDisqualified,
			FeedbackText: DisqualificationFeedback(reason),
			FraudReason:  &reason,
		}
	} else {
		correct, total := Grade(session.Content.Data(), answers)
		score := Score(correct, total)
		verdict := s.VerdictFor(score)
		result = model.ExamResult{
			Score:        score,
			Verdict:      verdict,
			FeedbackText: s.Generator.Feedback(ctx, score, verdict),
		}
	}

	finalized, err := s.SessionRepo.Finalize(candidateKey, answers, result)
	if err != nil {
		if errors.Is(err, util.ErrAlreadyFinalized) {
			stored, findErr := s.SessionRepo.FindByCandidateKey(candidateKey)
			if findErr != nil {
				return nil, findErr
			}
			logger.Log.Info("Concurrent submission lost the race", zap.String("candidate", candidateKey))
			return stored.Result(), nil
		}
		return nil, err
	}

	monitoring.ExamSubmissions.WithLabelValues(string(result.Verdict)).Inc()
	logger.Log.Info("Exam finalized",
		zap.String("candidate", candidateKey),
		zap.Int("score", result.Score),
		zap.String("verdict", string(result.Verdict)))

	s.publishFinalized(ctx, finalized)
	return finalized.Result(), nil
}

func (s *ExamService) publishFinalized(ctx context.Context, session *model.ExamSession) {
	finishedAt := s.now()
	if session.FinishedAt != nil {
		finishedAt = *session.FinishedAt
	}
	event := ExamFinalizedEvent{
		ExamID:       session.ID,
		CandidateKey: session.CandidateKey,
		VacancyCode:  session.VacancyCode,
		Score:        session.Score,
		Verdict:      session.Verdict,
		FraudReason:  session.FraudReason,
		FinishedAt:   finishedAt,
	}
	if err := s.Publisher.PublishExamFinalized(ctx, event); err != nil {
		logger.Log.Warn("Failed to publish exam finalized event",
			zap.String("candidate", session.CandidateKey),
			zap.Error(err))
	}
}

// GetResult 未定稿时返回 ErrSessionNotFound
func (s *ExamService) GetResult(candidateKey string) (*model.ExamResult, error) {
	session, err := s.SessionRepo.FindByCandidateKey(candidateKey)
	if err != nil {
		return nil, err
	}
	result := session.Result()
	if result == nil {
		return nil, util.ErrSessionNotFound
	}
	return result, nil
}
