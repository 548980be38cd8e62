package model

// CandidateProfile 由招聘系统维护，这里只读
// swagger:model CandidateProfile
type CandidateProfile struct {
	BaseModel
	Email           string `gorm:"size:191;uniqueIndex;not null" json:"email"`
	Name            string `gorm:"size:100" json:"name"`
	Skills          string `gorm:"type:text" json:"skills"`
	YearsExperience int    `gorm:"default:0" json:"yearsExperience"`
	VacancyCode     string `gorm:"size:64;index" json:"vacancyCode"` // 申请的岗位
}

func (CandidateProfile) TableName() string {
	return "candidates"
}

// Vacancy 岗位，只读
// swagger:model Vacancy
type Vacancy struct {
	BaseModel
	Code         string `gorm:"size:64;uniqueIndex;not null" json:"code"`
	Title        string `gorm:"size:255" json:"title"`
	Requirements string `gorm:"type:text" json:"requirements"`
}

func (Vacancy) TableName() string {
	return "vacancies"
}
