package domain

import (
	"time"
)

// Node is one registered worker machine reachable over SSH.
type Node struct {
	Address  string    `json:"address"`
	Username string    `json:"username"`
	Password string    `json:"-"` // never serialized in API responses
	AddedBy  int64     `json:"added_by"`
	AddedAt  time.Time `json:"added_at"`
}
