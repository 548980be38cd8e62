package testutil

import (
	"exam_proctor_backend/internal/model"
	"fmt"
)

// Questions 生成 n 道正确答案均为 correct 的题目
func Questions(prefix string, n, correct int) []model.Question {
	qs := make([]model.Question, n)
	for i := range qs {
		qs[i] = model.Question{
			ID:                 fmt.Sprintf("%s%d", prefix, i+1),
			Prompt:             fmt.Sprintf("%s question %d", prefix, i+1),
			Options:            []string{"A", "B", "C", "D"},
			CorrectOptionIndex: correct,
		}
	}
	return qs
}

func Content(knowledge, learning int) model.ExamContent {
	return model.ExamContent{
		Knowledge: Questions("k", knowledge, 0),
		Learning:  Questions("l", learning, 0),
	}
}

// Answers 前 right 道答对（选 0），其余答错（选 1）
func Answers(n, right int) []int {
	a := make([]int, n)
	for i := range a {
		if i >= right {
			a[i] = 1
		}
	}
	return a
}
