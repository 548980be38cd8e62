package controller

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"exam_proctor_backend/internal/config"
	"exam_proctor_backend/internal/middleware"
	"exam_proctor_backend/internal/model"
	"exam_proctor_backend/internal/repository"
	"exam_proctor_backend/internal/service"
	"exam_proctor_backend/internal/testutil"
	"exam_proctor_backend/internal/util"
	"exam_proctor_backend/pkg/security"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

const candidate = "ana@example.com"

var pngFrame = base64.StdEncoding.EncodeToString(append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...))

type apiFixture struct {
	router     *gin.Engine
	llm        *testutil.FakeLLM
	classifier *testutil.FakeClassifier
}

func newAPIFixture(t *testing.T, jwtCfg config.JWTConfig) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewTestDB(t)
	testutil.SeedCandidate(t, db, candidate, "Go, SQL", "BE-GO", "gin, gorm")

	examCfg := config.ExamConfig{
		DurationMinutes:          30,
		PassScore:                70,
		KnowledgeQuestions:       5,
		LearningQuestions:        5,
		GenerationTimeoutSeconds: 5,
		FeedbackTimeoutSeconds:   5,
		GenerationLockTTLSeconds: 5,
	}
	proctorCfg := config.ProctoringConfig{
		SampleIntervalSeconds: 1,
		AnalyzeTimeoutSeconds: 1,
		MaxFrameBytes:         1 << 20,
	}

	llm := testutil.NewFakeLLM(examCfg.KnowledgeQuestions, examCfg.LearningQuestions)
	classifier := &testutil.FakeClassifier{Result: model.FrameClassification{PersonCount: 1}}

	exams := service.NewExamService(
		repository.NewExamSessionRepository(db),
		repository.NewCandidateRepository(db),
		service.NewExamGenerator(llm, examCfg),
		repository.NewGenerationLock(nil, time.Second),
		service.NoopPublisher{},
		examCfg,
	)
	storage := &service.StorageService{Provider: &service.LocalStorageProvider{Config: &config.StorageConfig{LocalPath: t.TempDir()}}}
	proctoring := service.NewProctoringService(
		classifier,
		service.NewPolicyStore(service.DefaultFraudPolicy()),
		storage,
		repository.NewProctorIncidentRepository(db),
		proctorCfg,
	)
	hub := service.NewProctorHub(exams, proctoring, proctorCfg, security.CheckOrigin(nil))
	t.Cleanup(hub.Stop)

	examCtl := NewExamController(exams)
	proctorCtl := NewProctoringController(proctoring, hub)

	r := gin.New()
	api := r.Group("/api")
	api.Use(middleware.CandidateAuthMiddleware(jwtCfg))
	api.GET("/exam/generate", examCtl.Generate)
	api.POST("/exam/submit", examCtl.Submit)
	api.GET("/exam/result", examCtl.Result)
	api.POST("/proctoring/analyze", proctorCtl.Analyze)
	api.GET("/proctoring/session", proctorCtl.Session)

	return &apiFixture{router: r, llm: llm, classifier: classifier}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (f *apiFixture) do(t *testing.T, method, path string, body interface{}, header http.Header) (int, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func fullMarks() model.ExamAnswers {
	return model.ExamAnswers{
		Knowledge: testutil.Answers(5, 5),
		Learning:  testutil.Answers(5, 5),
	}
}

func TestGenerateRequiresCandidate(t *testing.T) {
	f := newAPIFixture(t, config.JWTConfig{})

	code, _ := f.do(t, http.MethodGet, "/api/exam/generate", nil, nil)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestGenerateUnknownCandidate(t *testing.T) {
	f := newAPIFixture(t, config.JWTConfig{})

	code, env := f.do(t, http.MethodGet, "/api/exam/generate?candidate=ghost@example.com", nil, nil)
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, http.StatusNotFound, env.Code)
}

func TestGenerateHidesAnswersAndResumes(t *testing.T) {
	f := newAPIFixture(t, config.JWTConfig{})

	code, env := f.do(t, http.MethodGet, "/api/exam/generate?candidate="+candidate, nil, nil)
	require.Equal(t, http.StatusOK, code)
	require.NotContains(t, string(env.Data), "correctOptionIndex")

	var view service.ExamView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	require.False(t, view.Resumed)
	require.Len(t, view.Questions.Knowledge, 5)
	require.Len(t, view.Questions.Learning, 5)

	code, env = f.do(t, http.MethodGet, "/api/exam/generate?candidate="+candidate, nil, nil)
	require.Equal(t, http.StatusOK, code)
	var resumed service.ExamView
	require.NoError(t, json.Unmarshal(env.Data, &resumed))
	require.True(t, resumed.Resumed)
	require.Equal(t, view.ExamID, resumed.ExamID)

	exam, _ := f.llm.Calls()
	require.Equal(t, 1, exam)
}

func TestSubmitAndResult(t *testing.T) {
	f := newAPIFixture(t, config.JWTConfig{})

	code, _ := f.do(t, http.MethodGet, "/api/exam/result?candidate="+candidate, nil, nil)
	require.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(t, http.MethodGet, "/api/exam/generate?candidate="+candidate, nil, nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = f.do(t, http.MethodGet, "/api/exam/result?candidate="+candidate, nil, nil)
	require.Equal(t, http.StatusNotFound, code)

	code, env := f.do(t, http.MethodPost, "/api/exam/submit", service.SubmitRequest{
		Candidate: candidate,
		Answers:   fullMarks(),
	}, nil)
	require.Equal(t, http.StatusOK, code)
	var result model.ExamResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.Equal(t, 100, result.Score)
	require.Equal(t, model.VerdictPassed, result.Verdict)

	code, env = f.do(t, http.MethodGet, "/api/exam/result?candidate="+candidate, nil, nil)
	require.Equal(t, http.StatusOK, code)
	var stored model.ExamResult
	require.NoError(t, json.Unmarshal(env.Data, &stored))
	require.Equal(t, result, stored)

	// 已交卷不能重新生成
	code, _ = f.do(t, http.MethodGet, "/api/exam/generate?candidate="+candidate, nil, nil)
	require.Equal(t, http.StatusConflict, code)
}

func TestSubmitWithFraudReason(t *testing.T) {
	f := newAPIFixture(t, config.JWTConfig{})
	f.do(t, http.MethodGet, "/api/exam/generate?candidate="+candidate, nil, nil)

	reason := "Focus lost"
	code, env := f.do(t, http.MethodPost, "/api/exam/submit", service.SubmitRequest{
		Candidate:   candidate,
		Answers:     fullMarks(),
		FraudReason: &reason,
	}, nil)
	require.Equal(t, http.StatusOK, code)

	var result model.ExamResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.Equal(t, 0, result.Score)
	require.Equal(t, model.VerdictDisqualified, result.Verdict)
	require.NotNil(t, result.FraudReason)
	require.Equal(t, reason, *result.FraudReason)
}

func TestSubmitBlankFraudReasonDisqualifies(t *testing.T) {
	f := newAPIFixture(t, config.JWTConfig{})
	f.do(t, http.MethodGet, "/api/exam/generate?candidate="+candidate, nil, nil)

	blank := "   "
	code, env := f.do(t, http.MethodPost, "/api/exam/submit", service.SubmitRequest{
		Candidate:   candidate,
		Answers:     fullMarks(),
		FraudReason: &blank,
	}, nil)
	require.Equal(t, http.StatusOK, code)

	var result model.ExamResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.Equal(t, 0, result.Score)
	require.Equal(t, model.VerdictDisqualified, result.Verdict)
	require.NotNil(t, result.FraudReason)
	require.Equal(t, service.ReasonUnspecified, *result.FraudReason)
}

func TestSubmitValidation(t *testing.T) {
	f := newAPIFixture(t, config.JWTConfig{})

	code, _ := f.do(t, http.MethodPost, "/api/exam/submit", map[string]interface{}{"answers": fullMarks()}, nil)
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodPost, "/api/exam/submit", service.SubmitRequest{Candidate: candidate}, nil)
	require.Equal(t, http.StatusNotFound, code)
}

func TestAnalyzeFrame(t *testing.T) {
	f := newAPIFixture(t, config.JWTConfig{})

	code, _ := f.do(t, http.MethodPost, "/api/proctoring/analyze", AnalyzeRequest{Frame: "not base64!"}, nil)
	require.Equal(t, http.StatusBadRequest, code)

	code, env := f.do(t, http.MethodPost, "/api/proctoring/analyze", AnalyzeRequest{Frame: "data:image/png;base64," + pngFrame}, nil)
	require.Equal(t, http.StatusOK, code)
	var clean service.AnalysisResult
	require.NoError(t, json.Unmarshal(env.Data, &clean))
	require.False(t, clean.Fraud)
	require.Nil(t, clean.Reason)

	f.classifier.Result = model.FrameClassification{PersonCount: 2}
	code, env = f.do(t, http.MethodPost, "/api/proctoring/analyze", AnalyzeRequest{Frame: pngFrame, Candidate: candidate}, nil)
	require.Equal(t, http.StatusOK, code)
	var fraud service.AnalysisResult
	require.NoError(t, json.Unmarshal(env.Data, &fraud))
	require.True(t, fraud.Fraud)
	require.NotNil(t, fraud.Reason)
	require.Equal(t, service.ReasonMultiplePeople, *fraud.Reason)
}

func TestCandidateTokenRequired(t *testing.T) {
	secret := "0123456789abcdef0123456789abcdef"
	f := newAPIFixture(t, config.JWTConfig{Enabled: true, Secret: secret})

	code, _ := f.do(t, http.MethodGet, "/api/exam/generate?candidate="+candidate, nil, nil)
	require.Equal(t, http.StatusUnauthorized, code)

	other, err := util.GenerateJWT("mallory@example.com", secret, time.Hour)
	require.NoError(t, err)
	code, _ = f.do(t, http.MethodGet, "/api/exam/generate?candidate="+candidate, nil, http.Header{
		"Authorization": {"Bearer " + other},
	})
	require.Equal(t, http.StatusForbidden, code)

	own, err := util.GenerateJWT(candidate, secret, time.Hour)
	require.NoError(t, err)
	code, _ = f.do(t, http.MethodGet, "/api/exam/generate?candidate="+candidate, nil, http.Header{
		"Authorization": {"Bearer " + own},
	})
	require.Equal(t, http.StatusOK, code)
}
