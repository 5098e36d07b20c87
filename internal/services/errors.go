package services

import "errors"

// Sentinel errors returned by the session, participant, and chat services.
// Handlers map them 1:1 onto HTTP statuses.
var (
	ErrSessionNotFound        = errors.New("session not found")
	ErrParticipantNotFound    = errors.New("participant not found")
	ErrMessageNotFound        = errors.New("message not found")
	ErrForbidden              = errors.New("forbidden")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrDuplicateRegistration  = errors.New("already registered")
	ErrSessionFull            = errors.New("session is full")
	ErrRegistrationClosed     = errors.New("registration closed")
	ErrInvalidPollVote        = errors.New("invalid poll vote")
	ErrAlreadyRated           = errors.New("already rated")
	ErrAlreadyReacted         = errors.New("already reacted")
	ErrFeatureDisabled        = errors.New("feature disabled for session")
	ErrInvalidInput           = errors.New("invalid input")
)
