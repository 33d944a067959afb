package retry

import "time"

// LoopInfo tracks state shared across all of a Retryer.Run call's attempts.
type LoopInfo struct {
	attemptsSoFar int
	durationLimit time.Duration
}

// FuncInfo is handed to each retried function on every attempt. It persists
// across attempts for a given function so that NoteSuccess can reset that
// function's own duration clock independently of its siblings.
type FuncInfo struct {
	loopInfo      *LoopInfo
	lastResetTime time.Time
}

// GetAttemptNumber returns the current attempt number, 0-indexed.
func (fi *FuncInfo) GetAttemptNumber() int {
	return fi.loopInfo.attemptsSoFar
}

// NoteSuccess resets this function's duration clock. Call it after a
// long-running function makes forward progress, so that a transient error
// occurring later doesn't get charged against time already spent
// succeeding.
func (fi *FuncInfo) NoteSuccess() {
	fi.lastResetTime = time.Now()
}
