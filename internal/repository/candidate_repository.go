package repository

import (
	"errors"
	"exam_proctor_backend/internal/model"
	"exam_proctor_backend/internal/util"

	"gorm.io/gorm"
)

// CandidateRepository 候选人与岗位目录，只读
type CandidateRepository struct {
	DB *gorm.DB
}

func NewCandidateRepository(db *gorm.DB) *CandidateRepository {
	return &CandidateRepository{DB: db}
}

func (r *CandidateRepository) FindProfile(email string) (*model.CandidateProfile, error) {
	var p model.CandidateProfile
	err := r.DB.Where("email = ?", email).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrCandidateNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *CandidateRepository) FindVacancy(code string) (*model.Vacancy, error) {
	var v model.Vacancy
	err := r.DB.Where("code = ?", code).First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrVacancyNotFound
		}
		return nil, err
	}
	return &v, nil
}
