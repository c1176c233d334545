package moderation

import (
	"context"
	"strings"
)

// Flag is a policy category raised against content.
type Flag string

const (
	// FlagIllegalContent is never human-reviewable and can never end in an
	// approval, regardless of any other flag.
	FlagIllegalContent Flag = "ILLEGAL_CONTENT"
	FlagExplicitAdult  Flag = "EXPLICIT_ADULT"
	FlagViolence       Flag = "VIOLENCE"
)

// JobStatus mirrors the external classification job's lifecycle.
type JobStatus string

const (
	JobInProgress JobStatus = "IN_PROGRESS"
	JobSucceeded  JobStatus = "SUCCEEDED"
	JobFailed     JobStatus = "FAILED"
)

// Label is one raw classification label with its confidence score.
type Label struct {
	Name       string
	Confidence float64
}

// JobResult is a poll snapshot of a classification job.
type JobResult struct {
	Status JobStatus
	Labels []Label
}

// Classifier submits encoded content to an asynchronous classification job
// and exposes its progress. Implementations wrap the external AI service;
// tests substitute a fake.
type Classifier interface {
	StartJob(ctx context.Context, key string) (jobID string, err error)
	GetJob(ctx context.Context, jobID string) (*JobResult, error)
}

// mapLabel folds a raw classifier label into a policy flag.
func mapLabel(name string) (Flag, bool) {
	switch {
	case strings.Contains(name, "Child") || strings.Contains(name, "Minor"):
		return FlagIllegalContent, true
	case strings.Contains(name, "Explicit Nudity"):
		return FlagExplicitAdult, true
	case strings.Contains(name, "Violence"):
		return FlagViolence, true
	}
	return "", false
}

func flagsToString(flags []Flag) string {
	parts := make([]string, len(flags))
	for i, f := range flags {
		parts[i] = string(f)
	}
	return strings.Join(parts, ",")
}

func containsFlag(flags []Flag, want Flag) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}
