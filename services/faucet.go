package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log"
	"os"
	"strings"
	"time"

	"devnet-waitlist-system/models"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// FaucetTokenDecimals: the devnet token's precision. Amounts are validated
// with exact decimals and stored as text — float64 would silently corrupt
// the low digits.
const FaucetTokenDecimals = 12

const claimExpiryAge = 24 * time.Hour

var (
	ErrInvalidAmount  = errors.New("invalid claim amount")
	ErrInvalidAddress = errors.New("invalid claim address")
	// ErrClaimPending: the address already has an unprocessed claim.
	ErrClaimPending = errors.New("a claim for this address is already pending")
)

// FaucetService records token disbursement attempts. It shares the identity
// store with the attribution engine but is otherwise independent: claims are
// written PENDING and settled out-of-band.
type FaucetService struct {
	DB       *gorm.DB
	MaxClaim decimal.Decimal
}

func NewFaucetService(db *gorm.DB) *FaucetService {
	maxClaim := decimal.NewFromInt(10)
	if v := os.Getenv("FAUCET_MAX_CLAIM"); v != "" {
		parsed, err := decimal.NewFromString(v)
		if err != nil {
			log.Printf("⚠️  Invalid FAUCET_MAX_CLAIM %q, using %s", v, maxClaim)
		} else {
			maxClaim = parsed
		}
	}
	return &FaucetService{DB: db, MaxClaim: maxClaim}
}

type ClaimInput struct {
	Email    string // optional; links the claim to an account when it resolves
	Address  string
	Amount   string
	ClientIP string
}

// SubmitClaim validates and records a PENDING claim. One pending claim per
// address at a time.
func (s *FaucetService) SubmitClaim(ctx context.Context, in ClaimInput) (*models.FaucetClaim, error) {
	db := s.DB.WithContext(ctx)

	address := strings.TrimSpace(in.Address)
	if len(address) < 8 {
		return nil, ErrInvalidAddress
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(in.Amount))
	if err != nil || !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if amount.Exponent() < -FaucetTokenDecimals {
		return nil, ErrInvalidAmount
	}
	if amount.GreaterThan(s.MaxClaim) {
		return nil, ErrInvalidAmount
	}

	var pending int64
	if err := db.Model(&models.FaucetClaim{}).
		Where("address = ? AND status = ?", address, models.ClaimStatusPending).
		Count(&pending).Error; err != nil {
		return nil, err
	}
	if pending > 0 {
		return nil, ErrClaimPending
	}

	var accountID *string
	if email := NormalizeEmail(in.Email); email != "" {
		var acct models.Account
		if err := db.Where("email = ?", email).First(&acct).Error; err == nil {
			accountID = &acct.ID
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	claim := models.FaucetClaim{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Address:   address,
		IPHash:    HashIP(in.ClientIP),
		Amount:    amount.String(),
		Status:    models.ClaimStatusPending,
	}
	if err := db.Create(&claim).Error; err != nil {
		return nil, err
	}
	return &claim, nil
}

// ListClaims returns the most recent claims for an address.
func (s *FaucetService) ListClaims(ctx context.Context, address string) ([]models.FaucetClaim, error) {
	var claims []models.FaucetClaim
	err := s.DB.WithContext(ctx).
		Where("address = ?", strings.TrimSpace(address)).
		Order("created_at DESC").
		Limit(50).
		Find(&claims).Error
	return claims, err
}

// StartExpiryScheduler rejects stale PENDING claims every 10 minutes.
func (s *FaucetService) StartExpiryScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(10*time.Minute),
		gocron.NewTask(func() {
			n, err := s.expireStaleClaims(time.Now())
			if err != nil {
				log.Printf("[FaucetExpiry] DB error: %v", err)
				return
			}
			if n > 0 {
				log.Printf("🧹 Rejected %d expired faucet claim(s)", n)
			}
		}),
	)
}

func (s *FaucetService) expireStaleClaims(now time.Time) (int64, error) {
	cutoff := now.Add(-claimExpiryAge)
	res := s.DB.Model(&models.FaucetClaim{}).
		Where("status = ? AND created_at < ?", models.ClaimStatusPending, cutoff).
		Updates(map[string]interface{}{
			"status":        models.ClaimStatusRejected,
			"reject_reason": "expired",
		})
	return res.RowsAffected, res.Error
}

// HashIP one-way hashes an origin IP for the claim ledger.
func HashIP(ip string) string {
	if ip == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:])
}
