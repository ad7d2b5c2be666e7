package pipeline

import "errors"

var (
	// ErrRecordRepositoryRequired is returned when a record repository is not provided.
	ErrRecordRepositoryRequired = errors.New("record repository required")

	// ErrAnalysisRepositoryRequired is returned when an analysis repository is not provided.
	ErrAnalysisRepositoryRequired = errors.New("analysis repository required")

	// ErrChunkRepositoryRequired is returned when a chunk repository is not provided.
	ErrChunkRepositoryRequired = errors.New("chunk repository required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrDispatchFailed is returned when a triggered task could not be queued.
	// The stage is marked FAILED so it can be triggered again.
	ErrDispatchFailed = errors.New("dispatch failed")

	// errStaleTask means the record no longer belongs to the task being run.
	errStaleTask = errors.New("stale task")
)
