package models

const (
	ClaimStatusPending  = "PENDING"
	ClaimStatusSent     = "SENT"
	ClaimStatusRejected = "REJECTED"
)

// FaucetClaim records one devnet token disbursement attempt.
type FaucetClaim struct {
	ID        string  `gorm:"primaryKey;type:uuid" json:"id"`
	AccountID *string `gorm:"index" json:"account_id,omitempty"`
	Address   string  `gorm:"index;not null" json:"address"`
	IPHash    string  `gorm:"index" json:"-"` // sha256 of the origin IP, never the raw IP

	// Amount is exact decimal text. The devnet token has 12 decimal places
	// and float64 cannot round-trip that.
	Amount string `gorm:"not null" json:"amount"`

	Status       string  `gorm:"index;default:'PENDING'" json:"status"`
	RejectReason *string `json:"reject_reason,omitempty"`
	TxRef        *string `json:"tx_ref,omitempty"`

	Timestamps
}
