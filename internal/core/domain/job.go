package domain

import (
	"time"
)

// JobRequest is one fleet-wide job submission. It lives only for the duration
// of a single dispatch and is never persisted.
type JobRequest struct {
	Target          string `json:"target"`
	Port            int    `json:"port"`
	DurationSeconds int    `json:"duration_seconds"`
	Principal       int64  `json:"principal"`
	Origin          Origin `json:"origin"`
}

// LaunchHandle identifies one backgrounded remote launch. Cancellation is not
// implemented, but every launch returns a handle so a later version can add
// it without changing the dispatch contract.
type LaunchHandle struct {
	NodeAddress string    `json:"node_address"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// NodeResult is the per-node outcome of a dispatch attempt.
type NodeResult struct {
	Handle LaunchHandle `json:"handle"`
	OK     bool         `json:"ok"`
	Detail string       `json:"detail,omitempty"`
}

// DispatchResult aggregates the outcome of one dispatch. Nodes that failed
// the liveness probe are excluded from NodesAttempted entirely; NodesFailed
// counts only nodes that were attempted and then failed.
type DispatchResult struct {
	JobID              string       `json:"job_id"`
	NodesAttempted     int          `json:"nodes_attempted"`
	NodesSucceeded     int          `json:"nodes_succeeded"`
	NodesFailed        int          `json:"nodes_failed"`
	CapacityPerNode    int          `json:"capacity_per_node"`
	TotalCapacityUnits int          `json:"total_capacity_units"`
	Nodes              []NodeResult `json:"nodes"`
}

// ActiveJob is the in-memory handle for a dispatch in flight, held from
// admission until completion or failure.
type ActiveJob struct {
	JobID     string    `json:"job_id"`
	Principal int64     `json:"principal"`
	Target    string    `json:"target"`
	StartedAt time.Time `json:"started_at"`
}
