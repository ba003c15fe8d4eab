package domain

import "errors"

var (
	// ErrEmptyCatalog is returned when a session started but no questions came back.
	ErrEmptyCatalog = errors.New("no questions available")
	// ErrStartFailed wraps transport or authority failures while starting a session.
	ErrStartFailed = errors.New("session failed to start")
	// ErrMalformedQuestion marks a question without exactly one correct option.
	ErrMalformedQuestion = errors.New("malformed question")
	// ErrFinishFailed wraps failures while reporting the final score.
	ErrFinishFailed = errors.New("session finish failed")
	// ErrSessionNotFound is returned when a session id is unknown.
	ErrSessionNotFound = errors.New("session not found")
	// ErrOptionNotFound indicates a submitted option ID is not on the current question.
	ErrOptionNotFound = errors.New("option not found")
	// ErrAlreadyStarted is returned when a session is started twice.
	ErrAlreadyStarted = errors.New("session already started")
	// ErrSessionAbandoned is returned when a session is torn down before it settles.
	ErrSessionAbandoned = errors.New("session abandoned")
	// ErrAlreadyFinished is returned by authorities for a repeated finish.
	ErrAlreadyFinished = errors.New("session already finished")
	// ErrCatalogNotFound indicates no catalog exists for a category.
	ErrCatalogNotFound = errors.New("catalog not found")
	// ErrInvalidDifficulty marks a difficulty table entry outside the allowed ranges.
	ErrInvalidDifficulty = errors.New("invalid difficulty parameters")
)
