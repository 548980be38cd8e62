package repository

import (
	"exam_proctor_backend/internal/model"

	"gorm.io/gorm"
)

type ProctorIncidentRepository struct {
	DB *gorm.DB
}

func NewProctorIncidentRepository(db *gorm.DB) *ProctorIncidentRepository {
	return &ProctorIncidentRepository{DB: db}
}

func (r *ProctorIncidentRepository) Create(incident *model.ProctorIncident) error {
	return r.DB.Create(incident).Error
}

func (r *ProctorIncidentRepository) ListByCandidate(key string) ([]model.ProctorIncident, error) {
	var incidents []model.ProctorIncident
	err := r.DB.Where("candidate_key = ?", key).Order("created_at asc").Find(&incidents).Error
	return incidents, err
}

func (r *ProctorIncidentRepository) CountByCandidate() (map[string]int64, error) {
	var rows []struct {
		CandidateKey string
		Count        int64
	}
	err := r.DB.Model(&model.ProctorIncident{}).
		Select("candidate_key, count(*) as count").
		Group("candidate_key").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.CandidateKey] = row.Count
	}
	return counts, nil
}
