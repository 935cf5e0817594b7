package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Account is a registered waitlist identity, keyed by email.
// Email is stored lowercased, so the unique index is effectively
// case-insensitive.
type Account struct {
	ID    string `gorm:"primaryKey;type:uuid" json:"id"`
	Email string `gorm:"uniqueIndex;not null" json:"email"`

	// Optional profile fields from the signup form
	Role       *string `json:"role,omitempty"`
	Experience *string `json:"experience,omitempty"`
	Discord    *string `json:"discord,omitempty"`
	Github     *string `json:"github,omitempty"`
	Country    *string `json:"country,omitempty"`

	// ReferralCode is minted on first signup; nullable until then, unique once set.
	ReferralCode *string `gorm:"uniqueIndex" json:"referral_code,omitempty"`

	// ReferredBy mirrors the first resolved SIGNUP ledger edge. Written once,
	// never rewritten — the referral_events table stays authoritative.
	ReferredBy *string `gorm:"index" json:"referred_by,omitempty"`

	EmailVerified bool `gorm:"default:false" json:"email_verified"`
	HumanVerified bool `gorm:"default:false" json:"human_verified"`

	// Attribution holds utm_source/medium/campaign/content/term. Updates merge
	// key-wise: incoming non-empty values overwrite, missing keys keep their
	// old value.
	Attribution datatypes.JSONMap `json:"attribution,omitempty"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
