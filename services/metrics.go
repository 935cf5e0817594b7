package services

import (
	"context"

	"devnet-waitlist-system/models"

	"gorm.io/gorm"
)

// MetricsService exposes read-only totals for the public stats endpoint.
type MetricsService struct {
	DB *gorm.DB
}

func NewMetricsService(db *gorm.DB) *MetricsService {
	return &MetricsService{DB: db}
}

type MetricsSnapshot struct {
	TotalAccounts    int64 `json:"total_accounts"`
	VerifiedAccounts int64 `json:"verified_accounts"`
	ReferralSignups  int64 `json:"referral_signups"`
	ReferralVerified int64 `json:"referral_verified"`
	PendingClaims    int64 `json:"pending_claims"`
}

func (s *MetricsService) Snapshot(ctx context.Context) (*MetricsSnapshot, error) {
	db := s.DB.WithContext(ctx)
	var snap MetricsSnapshot

	if err := db.Model(&models.Account{}).Count(&snap.TotalAccounts).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Account{}).Where("email_verified = ?", true).Count(&snap.VerifiedAccounts).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.ReferralEvent{}).Where("kind = ?", models.ReferralKindSignup).Count(&snap.ReferralSignups).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.ReferralEvent{}).Where("kind = ?", models.ReferralKindVerified).Count(&snap.ReferralVerified).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.FaucetClaim{}).Where("status = ?", models.ClaimStatusPending).Count(&snap.PendingClaims).Error; err != nil {
		return nil, err
	}
	return &snap, nil
}
