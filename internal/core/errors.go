package core

import "errors"

// Sentinel errors for the chat engine. Callers classify failures with
// errors.Is; fatal-for-the-turn errors are ErrValidation and ErrModelCall,
// the rest degrade the turn without failing it.
var (
	ErrValidation      = errors.New("validation failed")
	ErrSessionNotFound = errors.New("session not found")
	ErrModelCall       = errors.New("model call failed")
	ErrRetrieval       = errors.New("retrieval failed")
	ErrCacheLoad       = errors.New("vector store load failed")
	ErrSummarization   = errors.New("summarization failed")
	ErrIntent          = errors.New("intent tagging failed")
)
