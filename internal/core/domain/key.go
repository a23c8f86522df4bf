package domain

import (
	"time"
)

// TierClass is the duration bucket an access key is sold in. The enumeration
// is fixed; adding a class must not change the semantics of existing keys.
type TierClass string

const (
	ClassHour  TierClass = "hour"
	ClassDay   TierClass = "day"
	Class3Day  TierClass = "3day"
	ClassWeek  TierClass = "week"
	Class15Day TierClass = "15day"
	Class30Day TierClass = "30day"
)

// KeyPrices maps each tier class to its list price per issuance.
var KeyPrices = map[TierClass]int{
	ClassHour:  10,
	ClassDay:   80,
	Class3Day:  200,
	ClassWeek:  300,
	Class15Day: 900,
	Class30Day: 1500,
}

// Valid reports whether c is a known tier class.
func (c TierClass) Valid() bool {
	_, ok := KeyPrices[c]
	return ok
}

// Duration returns the fixed validity window a key of this class confers.
// The class enumeration is the whole contract: DurationUnits on a key is
// descriptive metadata and never scales the window.
func (c TierClass) Duration() time.Duration {
	switch c {
	case ClassHour:
		return time.Hour
	case ClassDay:
		return 24 * time.Hour
	case Class3Day:
		return 3 * 24 * time.Hour
	case ClassWeek:
		return 7 * 24 * time.Hour
	case Class15Day:
		return 15 * 24 * time.Hour
	case Class30Day:
		return 30 * 24 * time.Hour
	}
	return 0
}

// AccessKey is a one-shot, time-boxed access token. The raw code is returned
// once at issuance; only its hash is stored. Keys are never deleted so the
// redemption trail stays auditable.
type AccessKey struct {
	ID                    string     `json:"id"`
	CodeHash              string     `json:"-"`
	CodePrefix            string     `json:"code_prefix"`
	TierClass             TierClass  `json:"tier_class"`
	DurationUnits         int        `json:"duration_units"`
	Price                 int        `json:"price"`
	IsVIP                 bool       `json:"is_vip"`
	MaxJobSecondsOverride *int       `json:"max_job_seconds_override,omitempty"`
	Redeemed              bool       `json:"redeemed"`
	RedeemedBy            *int64     `json:"redeemed_by,omitempty"`
	RedeemedAt            *time.Time `json:"redeemed_at,omitempty"`
	CreatedBy             int64      `json:"created_by"`
	CreatedAt             time.Time  `json:"created_at"`
}
