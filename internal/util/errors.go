package util

import "errors"

var (
	ErrCandidateNotFound         = errors.New("candidate not found")
	ErrVacancyNotFound           = errors.New("vacancy not found")
	ErrSessionNotFound           = errors.New("exam session not found")
	ErrExamConflict              = errors.New("exam already completed for this candidate")
	ErrGenerationFailed          = errors.New("exam generation failed")
	ErrIncompleteProfile         = errors.New("candidate profile or vacancy requirements incomplete")
	ErrClassificationUnavailable = errors.New("classification service temporarily unavailable")
	ErrAlreadyFinalized          = errors.New("exam session already finalized")
	ErrInvalidFrame              = errors.New("invalid frame")
	ErrForbiddenCandidate        = errors.New("token does not belong to this candidate")
)
