package models

import "time"

const (
	ReferralKindSignup   = "SIGNUP"
	ReferralKindVerified = "VERIFIED"
	// ReferralKindClick is reserved in the schema; nothing emits it yet.
	ReferralKindClick = "CLICK"
)

// ReferralEvent is one immutable row of the attribution ledger. The composite
// unique index on (referrer, referee, kind) is the only write guard: a
// duplicate insert is rejected by the store and treated as already-recorded,
// never as a failure.
type ReferralEvent struct {
	ID         string `gorm:"primaryKey;type:uuid" json:"id"`
	ReferrerID string `gorm:"not null;uniqueIndex:idx_referral_edge" json:"referrer_id"`
	RefereeID  string `gorm:"not null;uniqueIndex:idx_referral_edge" json:"referee_id"`
	Kind       string `gorm:"not null;uniqueIndex:idx_referral_edge" json:"kind"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}
