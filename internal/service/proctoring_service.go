package service

import (
	"context"
	"exam_proctor_backend/internal/config"
	"exam_proctor_backend/internal/model"
	"exam_proctor_backend/internal/repository"
	"exam_proctor_backend/pkg/logger"
	"exam_proctor_backend/pkg/monitoring"
	"exam_proctor_backend/pkg/tracing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const UnavailableMessage = "classification service temporarily unavailable"

type AnalysisDebug struct {
	PersonCount int                    `json:"personCount"`
	Objects     []model.DetectedObject `json:"objects"`
	Tags        []model.DetectedObject `json:"tags"`
}

// AnalysisResult 识别失败时 fraud=false 且 Error 非空
type AnalysisResult struct {
	Fraud  bool          `json:"fraud"`
	Reason *string       `json:"reason"`
	Error  string        `json:"error,omitempty"`
	Debug  AnalysisDebug `json:"debug"`
}

// Unavailable 识别服务失败
func (r *AnalysisResult) Unavailable() bool {
	return r.Error != ""
}

// ProctoringService 帧识别 + 作弊判定；识别失败一律放行
type ProctoringService struct {
	Classifier   FrameClassifier
	Policy       *PolicyStore
	Storage      *StorageService
	IncidentRepo *repository.ProctorIncidentRepository
	Cfg          config.ProctoringConfig
}

func NewProctoringService(
	classifier FrameClassifier,
	policy *PolicyStore,
	storage *StorageService,
	incidentRepo *repository.ProctorIncidentRepository,
	cfg config.ProctoringConfig,
) *ProctoringService {
	return &ProctoringService{
		Classifier:   classifier,
		Policy:       policy,
		Storage:      storage,
		IncidentRepo: incidentRepo,
		Cfg:          cfg,
	}
}

// Analyze candidateKey 可为空；非空且判定可疑时记录证据，但不影响考试结果
func (s *ProctoringService) Analyze(ctx context.Context, candidateKey string, frame []byte, mimeType string) *AnalysisResult {
	ctx, span := tracing.Tracer.Start(ctx, "ProctoringService.Analyze")
	defer span.End()

	if timeout := s.Cfg.AnalyzeTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	fc, err := s.Classifier.Classify(ctx, frame, mimeType)
	monitoring.VisionLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		monitoring.VisionFailures.Inc()
		span.SetAttributes(attribute.Bool("proctoring.unavailable", true))
		logger.Log.Warn("Frame classification failed, failing open",
			zap.String("candidate", candidateKey),
			zap.Error(err))
		return &AnalysisResult{
			Fraud: false,
			Error: UnavailableMessage,
			Debug: AnalysisDebug{Objects: []model.DetectedObject{}, Tags: []model.DetectedObject{}},
		}
	}

	verdict := s.Policy.Evaluate(*fc)
	result := &AnalysisResult{
		Fraud: verdict.Suspicious,
		Debug: debugFor(fc),
	}
	span.SetAttributes(
		attribute.Int("proctoring.person_count", fc.PersonCount),
		attribute.Bool("proctoring.fraud", verdict.Suspicious),
	)

	if verdict.Suspicious {
		reason := verdict.Reason
		result.Reason = &reason
		monitoring.FraudVerdicts.WithLabelValues(reason).Inc()
		if candidateKey != "" {
			s.recordIncident(ctx, candidateKey, fc, reason, frame, mimeType)
		}
	}
	return result
}

func debugFor(fc *model.FrameClassification) AnalysisDebug {
	d := AnalysisDebug{
		PersonCount: fc.PersonCount,
		Objects:     []model.DetectedObject{},
		Tags:        []model.DetectedObject{},
	}
	for _, o := range fc.DetectedObjectTags {
		if o.Source == "tag" {
			d.Tags = append(d.Tags, o)
		} else {
			d.Objects = append(d.Objects, o)
		}
	}
	return d
}

// recordIncident 证据上传与落库失败只记日志
func (s *ProctoringService) recordIncident(ctx context.Context, candidateKey string, fc *model.FrameClassification, reason string, frame []byte, mimeType string) {
	if s.IncidentRepo == nil {
		return
	}

	incident := &model.ProctorIncident{
		CandidateKey: candidateKey,
		Reason:       reason,
		PersonCount:  fc.PersonCount,
		Detections:   datatypes.NewJSONType(fc.DetectedObjectTags),
	}

	if s.Cfg.StoreEvidence && s.Storage != nil {
		url, err := s.Storage.StoreEvidence(ctx, candidateKey, frame, mimeType)
		if err != nil {
			logger.Log.Warn("Failed to store evidence frame", zap.String("candidate", candidateKey), zap.Error(err))
		} else {
			incident.EvidenceURL = url
		}
	}

	if err := s.IncidentRepo.Create(incident); err != nil {
		logger.Log.Warn("Failed to record proctor incident", zap.String("candidate", candidateKey), zap.Error(err))
	}
}
