package models

import "time"

// SyncError is one entry of the bounded, user-facing error log.
type SyncError struct {
	Message     string `json:"message"`
	Code        string `json:"code,omitempty"`
	Timestamp   int64  `json:"timestamp"` // epoch millis
	OperationID string `json:"operationId,omitempty"`
}

// SyncState is the derived, non-persisted view broadcast to subscribers.
type SyncState struct {
	IsOnline          bool        `json:"isOnline"`
	IsSyncing         bool        `json:"isSyncing"`
	PendingOperations int         `json:"pendingOperations"`
	LastSyncTime      int64       `json:"lastSyncTime,omitempty"` // epoch millis, 0 if never
	Errors            []SyncError `json:"errors"`
}

// Clone returns a copy that shares no slices with s.
func (s SyncState) Clone() SyncState {
	cp := s
	cp.Errors = append([]SyncError(nil), s.Errors...)
	return cp
}

// LastError returns the most recent error, if any.
func (s SyncState) LastError() (SyncError, bool) {
	if len(s.Errors) == 0 {
		return SyncError{}, false
	}
	return s.Errors[len(s.Errors)-1], true
}

// LastSync returns LastSyncTime as time.Time; zero if never synced.
func (s SyncState) LastSync() time.Time {
	if s.LastSyncTime == 0 {
		return time.Time{}
	}
	return time.UnixMilli(s.LastSyncTime)
}

// NowMillis returns the current time in epoch millis.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
