package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// DraftKey returns the key holding the unsent answer drafts of a submission.
// Used by every draft store backing, on-device and Redis alike.
func (r *CacheKeyStruct) DraftKey(submissionID string) string {
	return fmt.Sprintf("draft:submission:%s:answers", submissionID)
}

// SubmissionAnswersKey returns the server-side hash of saved answers for a submission.
func (r *CacheKeyStruct) SubmissionAnswersKey(submissionID string) string {
	return fmt.Sprintf("submission:%s:answers", submissionID)
}

// SubmissionRemainingKey returns the key of the last remaining time reported by a client.
func (r *CacheKeyStruct) SubmissionRemainingKey(submissionID string) string {
	return fmt.Sprintf("submission:%s:remaining", submissionID)
}

// ExamMonitorChannel returns the Redis PubSub channel name for an exam monitor
func (r *CacheKeyStruct) ExamMonitorChannel(examID string) string {
	return fmt.Sprintf("exam:%s:monitor", examID)
}

var CacheKey = NewCacheKeyStruct()
