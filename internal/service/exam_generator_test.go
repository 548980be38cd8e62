package service

import (
	"context"
	"errors"
	"exam_proctor_backend/internal/config"
	"exam_proctor_backend/internal/model"
	"exam_proctor_backend/internal/testutil"
	"exam_proctor_backend/internal/util"
	"testing"

	"github.com/stretchr/testify/require"
)

func testExamConfig() config.ExamConfig {
	return config.ExamConfig{
		DurationMinutes:          30,
		PassScore:                70,
		KnowledgeQuestions:       5,
		LearningQuestions:        5,
		GenerationTimeoutSeconds: 5,
		FeedbackTimeoutSeconds:   5,
		GenerationLockTTLSeconds: 5,
	}
}

func TestParseExamContentAcceptsFencedJSON(t *testing.T) {
	content, err := ParseExamContent(testutil.ExamJSON(5, 5), 5, 5)
	require.NoError(t, err)
	require.Len(t, content.Knowledge, 5)
	require.Len(t, content.Learning, 5)
	require.Equal(t, "k1", content.Knowledge[0].ID)
	require.Equal(t, "l5", content.Learning[4].ID)
	require.Equal(t, 0, content.Learning[4].CorrectOptionIndex)
}

func TestParseExamContentRejectsMalformedOutput(t *testing.T) {
	cases := map[string]string{
		"not json":        "Sure! Here is your exam.",
		"wrong count":     testutil.ExamJSON(4, 5),
		"three options":   `{"knowledge":[{"prompt":"p","options":["a","b","c"],"correctIndex":0}],"learning":[]}`,
		"index too large": `{"knowledge":[{"prompt":"p","options":["a","b","c","d"],"correctIndex":4}],"learning":[{"prompt":"p","options":["a","b","c","d"],"correctIndex":1}]}`,
		"missing index":   `{"knowledge":[{"prompt":"p","options":["a","b","c","d"]}],"learning":[{"prompt":"p","options":["a","b","c","d"],"correctIndex":1}]}`,
		"empty prompt":    `{"knowledge":[{"prompt":" ","options":["a","b","c","d"],"correctIndex":0}],"learning":[{"prompt":"p","options":["a","b","c","d"],"correctIndex":1}]}`,
		"blank option":    `{"knowledge":[{"prompt":"p","options":["a","","c","d"],"correctIndex":0}],"learning":[{"prompt":"p","options":["a","b","c","d"],"correctIndex":1}]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			want := 5
			if name != "not json" && name != "wrong count" {
				want = 1
			}
			_, err := ParseExamContent(raw, want, want)
			require.ErrorIs(t, err, util.ErrGenerationFailed)
		})
	}
}

func TestParseExamContentAcceptsAlternateFieldNames(t *testing.T) {
	raw := `{"knowledge":[{"id":"q-a","question":"What?","options":["a","b","c","d"],"correctOptionIndex":2}],
	         "learning":[{"prompt":"Why?","options":["a","b","c","d"],"correctIndex":3}]}`
	content, err := ParseExamContent(raw, 1, 1)
	require.NoError(t, err)
	require.Equal(t, "q-a", content.Knowledge[0].ID)
	require.Equal(t, "What?", content.Knowledge[0].Prompt)
	require.Equal(t, 2, content.Knowledge[0].CorrectOptionIndex)
	require.Equal(t, 3, content.Learning[0].CorrectOptionIndex)
}

func TestGenerateRequiresSkillsAndRequirements(t *testing.T) {
	llm := testutil.NewFakeLLM(5, 5)
	g := NewExamGenerator(llm, testExamConfig())

	_, err := g.Generate(context.Background(),
		&model.CandidateProfile{Email: "ana@example.com", Skills: "  "},
		&model.Vacancy{Code: "TEST-JAVA", Requirements: "Java"})
	require.ErrorIs(t, err, util.ErrIncompleteProfile)

	_, err = g.Generate(context.Background(),
		&model.CandidateProfile{Email: "ana@example.com", Skills: "Java"},
		&model.Vacancy{Code: "TEST-JAVA"})
	require.ErrorIs(t, err, util.ErrIncompleteProfile)

	examCalls, _ := llm.Calls()
	require.Zero(t, examCalls)
}

func TestGenerateWrapsProviderErrors(t *testing.T) {
	llm := testutil.NewFakeLLM(5, 5)
	llm.ExamErr = errors.New("upstream 503")
	g := NewExamGenerator(llm, testExamConfig())

	_, err := g.Generate(context.Background(),
		&model.CandidateProfile{Email: "ana@example.com", Skills: "Java"},
		&model.Vacancy{Code: "TEST-JAVA", Requirements: "Spring"})
	require.ErrorIs(t, err, util.ErrGenerationFailed)
}

func TestFeedbackDegradesToEmpty(t *testing.T) {
	llm := testutil.NewFakeLLM(5, 5)
	llm.FeedbackErr = errors.New("timeout")
	g := NewExamGenerator(llm, testExamConfig())

	require.Empty(t, g.Feedback(context.Background(), 60, model.VerdictFailed))
}
