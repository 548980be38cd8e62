package repository

import (
	"errors"
	"exam_proctor_backend/internal/model"
	"exam_proctor_backend/internal/util"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ExamSessionRepository struct {
	DB *gorm.DB
}

func NewExamSessionRepository(db *gorm.DB) *ExamSessionRepository {
	return &ExamSessionRepository{DB: db}
}

func (r *ExamSessionRepository) FindByCandidateKey(key string) (*model.ExamSession, error) {
	var s model.ExamSession
	err := r.DB.Where("candidate_key = ?", key).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrSessionNotFound
		}
		return nil, err
	}
	return &s, nil
}

// CreateIfAbsent 依赖 candidate_key 唯一索引，并发插入时只有一条能落库；
// 未插入成功的调用方读回已存在的那条
func (r *ExamSessionRepository) CreateIfAbsent(key, vacancyCode string, content model.ExamContent) (*model.ExamSession, bool, error) {
	s := &model.ExamSession{
		CandidateKey: key,
		VacancyCode:  vacancyCode,
		Status:       model.ExamStatusGenerated,
		Content:      datatypes.NewJSONType(content),
		Answers:      datatypes.NewJSONType(model.ExamAnswers{}),
		StartedAt:    time.Now(),
	}

	result := r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "candidate_key"}},
		DoNothing: true,
	}).Create(s)
	if result.Error != nil {
		return nil, false, result.Error
	}
	if result.RowsAffected == 1 {
		return s, true, nil
	}

	existing, err := r.FindByCandidateKey(key)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// Finalize 条件更新 status=generated 的记录，保证定稿只发生一次
func (r *ExamSessionRepository) Finalize(key string, answers model.ExamAnswers, result model.ExamResult) (*model.ExamSession, error) {
	var finalized model.ExamSession
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		res := tx.Model(&model.ExamSession{}).
			Where("candidate_key = ? AND status = ?", key, model.ExamStatusGenerated).
			Updates(map[string]interface{}{
				"status":       model.ExamStatusFinalized,
				"answers":      datatypes.NewJSONType(answers),
				"score":        result.Score,
				"verdict":      result.Verdict,
				"feedback":     result.FeedbackText,
				"fraud_reason": result.FraudReason,
				"finished_at":  &now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&model.ExamSession{}).Where("candidate_key = ?", key).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return util.ErrSessionNotFound
			}
			return util.ErrAlreadyFinalized
		}
		return tx.Where("candidate_key = ?", key).First(&finalized).Error
	})
	if err != nil {
		return nil, err
	}
	return &finalized, nil
}

// ListRecent 按开始时间倒序，limit <= 0 时不限制
func (r *ExamSessionRepository) ListRecent(limit int) ([]model.ExamSession, error) {
	var sessions []model.ExamSession
	query := r.DB.Model(&model.ExamSession{}).Order("started_at desc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&sessions).Error
	return sessions, err
}

type VerdictCount struct {
	Verdict model.Verdict
	Count   int64
}

func (r *ExamSessionRepository) CountByVerdict() ([]VerdictCount, error) {
	var rows []VerdictCount
	err := r.DB.Model(&model.ExamSession{}).
		Select("verdict, count(*) as count").
		Where("status = ?", model.ExamStatusFinalized).
		Group("verdict").
		Scan(&rows).Error
	return rows, err
}
