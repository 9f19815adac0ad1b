package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ExamPayloadKey returns the cache key for a published exam's payload
// (sections plus candidate-safe questions).
func (r *CacheKeyStruct) ExamPayloadKey(examID string) string {
	return fmt.Sprintf("exam:%s:payload", examID)
}

// ExamEntryTokenKey returns the cache key for an exam's hashed entry token.
func (r *CacheKeyStruct) ExamEntryTokenKey(examID string) string {
	return fmt.Sprintf("exam:%s:entry_token", examID)
}

// AttemptSessionKey returns the cache key for an attempt's latest session
// snapshot.
func (r *CacheKeyStruct) AttemptSessionKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:session", attemptID)
}

// AttemptQuestionsKey returns the cache key for an attempt's question
// snapshot hash (field per question id).
func (r *CacheKeyStruct) AttemptQuestionsKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:questions", attemptID)
}

// CandidateActiveAttemptKey returns the cache key for a candidate's
// currently active attempt.
func (r *CacheKeyStruct) CandidateActiveAttemptKey(candidateID int) string {
	return fmt.Sprintf("candidate:%d:active_attempt", candidateID)
}

var CacheKey = NewCacheKeyStruct()
