package model

import "gorm.io/datatypes"

// DetectedObject 识别服务返回的单个实体
type DetectedObject struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source,omitempty"` // object | tag
}

// FrameClassification 单帧识别结果，不落库
type FrameClassification struct {
	PersonCount        int              `json:"personCount"`
	DetectedObjectTags []DetectedObject `json:"detectedObjectTags"`
}

type FraudVerdict struct {
	Suspicious bool   `json:"suspicious"`
	Reason     string `json:"reason,omitempty"`
}

func CleanVerdict() FraudVerdict {
	return FraudVerdict{}
}

func SuspiciousVerdict(reason string) FraudVerdict {
	return FraudVerdict{Suspicious: true, Reason: reason}
}

// ProctorIncident 可疑帧记录，供人工复核；不影响考试结果
// swagger:model ProctorIncident
type ProctorIncident struct {
	UUIDBase
	CandidateKey string                               `gorm:"size:191;index;not null" json:"candidateKey"`
	Reason       string                               `gorm:"size:255" json:"reason"`
	EvidenceURL  string                               `gorm:"size:512" json:"evidenceUrl"`
	PersonCount  int                                  `json:"personCount"`
	Detections   datatypes.JSONType[[]DetectedObject] `json:"detections"`
}

func (ProctorIncident) TableName() string {
	return "proctor_incidents"
}
