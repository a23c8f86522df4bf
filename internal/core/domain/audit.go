package domain

import (
	"time"
)

// AuditLog records one mutating action (registry, roster, key or dispatch)
// for later inspection.
type AuditLog struct {
	ID           string    `json:"id"`
	PrincipalID  int64     `json:"principal_id"`
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	Details      string    `json:"details"`
	CreatedAt    time.Time `json:"created_at"`
}
