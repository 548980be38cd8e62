package testutil

import (
	"exam_proctor_backend/internal/model"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestDB 每个测试独立的内存 sqlite，单连接避免 shared cache 锁冲突
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&model.ExamSession{},
		&model.ProctorIncident{},
		&model.CandidateProfile{},
		&model.Vacancy{},
	))
	return db
}

// SeedCandidate 写入一名候选人及其申请的岗位
func SeedCandidate(t *testing.T, db *gorm.DB, email, skills, vacancyCode, requirements string) {
	t.Helper()

	require.NoError(t, db.Create(&model.Vacancy{
		Code:         vacancyCode,
		Title:        "Backend Engineer",
		Requirements: requirements,
	}).Error)
	require.NoError(t, db.Create(&model.CandidateProfile{
		Email:           email,
		Name:            "Ana",
		Skills:          skills,
		YearsExperience: 3,
		VacancyCode:     vacancyCode,
	}).Error)
}
