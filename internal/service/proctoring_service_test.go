package service

import (
	"context"
	"exam_proctor_backend/internal/config"
	"exam_proctor_backend/internal/model"
	"exam_proctor_backend/internal/repository"
	"exam_proctor_backend/internal/testutil"
	"exam_proctor_backend/internal/util"
	"testing"

	"github.com/stretchr/testify/require"
)

func newProctoringFixture(t *testing.T, classifier FrameClassifier) (*ProctoringService, *repository.ProctorIncidentRepository) {
	t.Helper()

	db := testutil.NewTestDB(t)
	incidents := repository.NewProctorIncidentRepository(db)
	storage := &StorageService{Provider: &LocalStorageProvider{Config: &config.StorageConfig{LocalPath: t.TempDir()}}}
	svc := NewProctoringService(classifier, NewPolicyStore(DefaultFraudPolicy()), storage, incidents, config.ProctoringConfig{
		AnalyzeTimeoutSeconds: 1,
		StoreEvidence:         true,
	})
	return svc, incidents
}

func TestAnalyzeFailsOpen(t *testing.T) {
	classifier := &testutil.FakeClassifier{Err: util.ErrClassificationUnavailable}
	svc, incidents := newProctoringFixture(t, classifier)

	result := svc.Analyze(context.Background(), "ana@example.com", []byte("frame"), util.MimeJPEG)
	require.False(t, result.Fraud)
	require.Nil(t, result.Reason)
	require.True(t, result.Unavailable())
	require.Equal(t, UnavailableMessage, result.Error)

	stored, err := incidents.ListByCandidate("ana@example.com")
	require.NoError(t, err)
	require.Empty(t, stored)
}

func TestAnalyzeFailsOpenOnTimeout(t *testing.T) {
	classifier := &testutil.FakeClassifier{Block: make(chan struct{})}
	svc, _ := newProctoringFixture(t, classifier)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := svc.Analyze(ctx, "", []byte("frame"), util.MimeJPEG)
	require.False(t, result.Fraud)
	require.True(t, result.Unavailable())
}

func TestAnalyzeRecordsIncident(t *testing.T) {
	classifier := &testutil.FakeClassifier{Result: model.FrameClassification{
		PersonCount: 1,
		DetectedObjectTags: []model.DetectedObject{
			{Name: "cell phone", Confidence: 0.92, Source: "object"},
			{Name: "indoor", Confidence: 0.99, Source: "tag"},
		},
	}}
	svc, incidents := newProctoringFixture(t, classifier)

	result := svc.Analyze(context.Background(), "ana@example.com", []byte("frame"), util.MimeJPEG)
	require.True(t, result.Fraud)
	require.NotNil(t, result.Reason)
	require.Equal(t, ReasonDevice, *result.Reason)
	require.Equal(t, 1, result.Debug.PersonCount)
	require.Len(t, result.Debug.Objects, 1)
	require.Len(t, result.Debug.Tags, 1)

	stored, err := incidents.ListByCandidate("ana@example.com")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, ReasonDevice, stored[0].Reason)
	require.Contains(t, stored[0].EvidenceURL, "/uploads/evidence/ana@example.com/")
	require.Len(t, stored[0].Detections.Data(), 2)
}

func TestAnalyzeCleanFrame(t *testing.T) {
	classifier := &testutil.FakeClassifier{Result: model.FrameClassification{PersonCount: 1}}
	svc, incidents := newProctoringFixture(t, classifier)

	result := svc.Analyze(context.Background(), "ana@example.com", []byte("frame"), util.MimeJPEG)
	require.False(t, result.Fraud)
	require.Nil(t, result.Reason)
	require.Empty(t, result.Error)

	stored, err := incidents.ListByCandidate("ana@example.com")
	require.NoError(t, err)
	require.Empty(t, stored)
	require.Equal(t, 1, classifier.CallCount())
}
