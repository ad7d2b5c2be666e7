package reembed

import "errors"

var (
	// ErrRecordRepositoryRequired is returned when a record repository is not provided.
	ErrRecordRepositoryRequired = errors.New("record repository required")

	// ErrSchedulerRequired is returned when no scheduler is provided.
	ErrSchedulerRequired = errors.New("scheduler required")
)
