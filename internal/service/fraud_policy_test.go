package service

import (
	"context"
	"exam_proctor_backend/internal/model"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFraudPolicyRules(t *testing.T) {
	p := DefaultFraudPolicy()

	cases := []struct {
		name string
		fc   model.FrameClassification
		want model.FraudVerdict
	}{
		{"nobody", model.FrameClassification{PersonCount: 0}, model.SuspiciousVerdict(ReasonNoFace)},
		{"two people", model.FrameClassification{PersonCount: 2}, model.SuspiciousVerdict(ReasonMultiplePeople)},
		{"phone", model.FrameClassification{PersonCount: 1, DetectedObjectTags: []model.DetectedObject{
			{Name: "Mobile Phone", Confidence: 0.81},
		}}, model.SuspiciousVerdict(ReasonDevice)},
		{"low confidence phone", model.FrameClassification{PersonCount: 1, DetectedObjectTags: []model.DetectedObject{
			{Name: "cell phone", Confidence: 0.6},
		}}, model.CleanVerdict()},
		{"clean", model.FrameClassification{PersonCount: 1, DetectedObjectTags: []model.DetectedObject{
			{Name: "indoor", Confidence: 0.99},
			{Name: "glasses", Confidence: 0.9},
		}}, model.CleanVerdict()},
		{"microphone", model.FrameClassification{PersonCount: 1, DetectedObjectTags: []model.DetectedObject{
			{Name: "microphone", Confidence: 0.95},
		}}, model.CleanVerdict()},
		{"saxophone", model.FrameClassification{PersonCount: 1, DetectedObjectTags: []model.DetectedObject{
			{Name: "Saxophone", Confidence: 0.95},
		}}, model.CleanVerdict()},
		{"headphone jack", model.FrameClassification{PersonCount: 1, DetectedObjectTags: []model.DetectedObject{
			{Name: "headphone jack", Confidence: 0.95},
		}}, model.CleanVerdict()},
		{"multi-word keyword", model.FrameClassification{PersonCount: 1, DetectedObjectTags: []model.DetectedObject{
			{Name: "Electronic-Device", Confidence: 0.7},
		}}, model.SuspiciousVerdict(ReasonDevice)},
		{"first rule wins", model.FrameClassification{PersonCount: 3, DetectedObjectTags: []model.DetectedObject{
			{Name: "tablet", Confidence: 0.99},
		}}, model.SuspiciousVerdict(ReasonMultiplePeople)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, p.Evaluate(tc.fc))
		})
	}
}

func TestLoadFraudPolicyRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")

	require.NoError(t, os.WriteFile(path, []byte("device_min_confidence: 3\ndevice_keywords: [phone]\n"), 0644))
	_, err := LoadFraudPolicy(path)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("device_min_confidence: [\n"), 0644))
	_, err = LoadFraudPolicy(path)
	require.Error(t, err)
}

func TestPolicyStoreReloadKeepsPreviousOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	store := NewPolicyStore(DefaultFraudPolicy())

	require.NoError(t, os.WriteFile(path, []byte("device_min_confidence: 0.9\ndevice_keywords: [watch]\n"), 0644))
	require.NoError(t, store.Reload(path))
	require.Equal(t, []string{"watch"}, store.Get().DeviceKeywords)

	require.NoError(t, os.WriteFile(path, []byte("device_keywords: []\n"), 0644))
	require.Error(t, store.Reload(path))
	require.Equal(t, []string{"watch"}, store.Get().DeviceKeywords)
}

func TestPolicyStoreWatchPicksUpChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("device_min_confidence: 0.6\ndevice_keywords: [phone]\n"), 0644))

	store := NewPolicyStore(DefaultFraudPolicy())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		store.Watch(ctx, path)
	}()
	defer func() {
		cancel()
		<-done
	}()

	// 等待 watcher 注册
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("device_min_confidence: 0.2\ndevice_keywords: [smartwatch]\n"), 0644))

	require.Eventually(t, func() bool {
		return store.Get().DeviceMinConfidence == 0.2
	}, 5*time.Second, 50*time.Millisecond)
	require.Equal(t, []string{"smartwatch"}, store.Get().DeviceKeywords)
}
