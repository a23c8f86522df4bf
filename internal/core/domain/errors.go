package domain

import (
	"errors"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrDuplicateNode         = errors.New("node already registered")
	ErrInvalidInput          = errors.New("invalid input")
	ErrPermissionDenied      = errors.New("permission denied")
	ErrNoCapacity            = errors.New("no responsive nodes available")
	ErrTooManyConcurrentJobs = errors.New("too many concurrent jobs")
	ErrCooldownActive        = errors.New("cooldown active")
	ErrKeyInvalid            = errors.New("key invalid")
	ErrKeyAlreadyRedeemed    = errors.New("key already redeemed")
	ErrInsufficientBalance   = errors.New("insufficient reseller balance")
	ErrInvalidGrant          = errors.New("grant record is inconsistent")
)
