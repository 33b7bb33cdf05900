package models

import "time"

// Conflict resolutions recorded in the conflict log.
const (
	ResolutionServerWins = "server_wins"
	ResolutionMerged     = "merged"
	ResolutionClientWins = "client_wins"
	ResolutionRejected   = "rejected"
)

// ConflictLog records a detected version conflict and how it was settled.
type ConflictLog struct {
	ID            string `db:"id" json:"id"`
	Entity        string `db:"entity" json:"entity"`
	EntityID      string `db:"entity_id" json:"entityId"`
	OperationID   string `db:"operation_id" json:"operationId,omitempty"`
	LocalVersion  int64  `db:"local_version" json:"localVersion"`
	ServerVersion int64  `db:"server_version" json:"serverVersion"`
	Resolution    string `db:"resolution" json:"resolution"`
	DetectedAt    int64  `db:"detected_at" json:"detectedAt"` // epoch millis
}

// TableName returns the table name for ConflictLog.
func (ConflictLog) TableName() string {
	return "conflict_log"
}

// DetectedAtTime returns the DetectedAt as time.Time.
func (c *ConflictLog) DetectedAtTime() time.Time {
	return time.UnixMilli(c.DetectedAt)
}
