package services

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"strings"

	"devnet-waitlist-system/models"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	// ErrAccountNotFound: the verification credential resolved to no account.
	ErrAccountNotFound = errors.New("account not found")
	// ErrCodeExhausted: referral-code minting hit the retry cap. Fatal for the
	// request, logged for operator attention — never shown raw to end users.
	ErrCodeExhausted = errors.New("referral code minting attempts exhausted")
)

const (
	codePrefixLen = 6
	codeSuffixLen = 4
	mintAttempts  = 3
	codeAlphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// AttributionService owns the signup → verify lifecycle: identity upserts,
// referral-code minting and the append-only referral ledger. It carries no
// locks — uniqueness constraints in the store serialize conflicting writes,
// and the service branches on gorm.ErrDuplicatedKey (TranslateError must be
// on for the connection).
type AttributionService struct {
	DB *gorm.DB
}

func NewAttributionService(db *gorm.DB) *AttributionService {
	return &AttributionService{DB: db}
}

type SignupInput struct {
	Email      string
	Role       *string
	Experience *string
	Discord    *string
	Github     *string
	Country    *string

	// ReferralCode is the already-chosen winner between the user-typed field
	// and the URL-captured one (handler picks; user-typed wins).
	ReferralCode string

	// Attribution carries utm_source/medium/campaign/content/term.
	// Empty values are ignored; present values overwrite.
	Attribution map[string]string

	// HumanVerified is set by the caller after the human-check passed.
	HumanVerified bool
}

type SignupResult struct {
	AccountID    string
	ReferralCode string
	IsNewAccount bool
}

type VerifyResult struct {
	AlreadyVerified bool
	Awarded         bool
}

// NormalizeEmail lowercases and trims; the store's unique index is on this form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Signup upserts the account for the given email, mints a referral code if
// the account has none, and appends a SIGNUP ledger event when a valid,
// non-self referral code was supplied. Idempotent: retried calls return the
// same account and code and never duplicate ledger rows.
func (s *AttributionService) Signup(ctx context.Context, in SignupInput) (*SignupResult, error) {
	email := NormalizeEmail(in.Email)
	db := s.DB.WithContext(ctx)

	acct, isNew, err := s.upsertAccount(db, email, in)
	if err != nil {
		return nil, err
	}

	if code := strings.ToUpper(strings.TrimSpace(in.ReferralCode)); code != "" {
		if err := s.recordSignupEdge(db, code, acct); err != nil {
			return nil, err
		}
	}

	return &SignupResult{
		AccountID:    acct.ID,
		ReferralCode: derefStr(acct.ReferralCode),
		IsNewAccount: isNew,
	}, nil
}

func (s *AttributionService) upsertAccount(db *gorm.DB, email string, in SignupInput) (*models.Account, bool, error) {
	var acct models.Account
	err := db.Where("email = ?", email).First(&acct).Error
	if err == nil {
		if err := s.mergeAccount(db, &acct, in); err != nil {
			return nil, false, err
		}
		return &acct, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	return s.createAccount(db, email, in)
}

func (s *AttributionService) createAccount(db *gorm.DB, email string, in SignupInput) (*models.Account, bool, error) {
	for attempt := 0; attempt < mintAttempts; attempt++ {
		code := newCodeCandidate(email)
		acct := models.Account{
			ID:            uuid.NewString(),
			Email:         email,
			Role:          in.Role,
			Experience:    in.Experience,
			Discord:       in.Discord,
			Github:        in.Github,
			Country:       in.Country,
			ReferralCode:  &code,
			HumanVerified: in.HumanVerified,
			Attribution:   mergeAttribution(nil, in.Attribution),
		}
		err := db.Create(&acct).Error
		if err == nil {
			return &acct, true, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, false, err
		}
		// The violated key is either the email (lost a concurrent-signup
		// race) or the referral code (collision). Re-check the email: if the
		// row exists now, fall into the merge path; otherwise retry with a
		// fresh suffix.
		var existing models.Account
		lookupErr := db.Where("email = ?", email).First(&existing).Error
		if lookupErr == nil {
			if mergeErr := s.mergeAccount(db, &existing, in); mergeErr != nil {
				return nil, false, mergeErr
			}
			return &existing, false, nil
		}
		if !errors.Is(lookupErr, gorm.ErrRecordNotFound) {
			return nil, false, lookupErr
		}
	}
	log.Printf("❌ [ATTRIBUTION] referral-code minting exhausted %d attempts for %s", mintAttempts, email)
	return nil, false, ErrCodeExhausted
}

// mergeAccount applies last-write-wins per supplied profile field, unions
// attribution metadata, and mints a referral code if the row predates minting.
func (s *AttributionService) mergeAccount(db *gorm.DB, acct *models.Account, in SignupInput) error {
	if in.Role != nil {
		acct.Role = in.Role
	}
	if in.Experience != nil {
		acct.Experience = in.Experience
	}
	if in.Discord != nil {
		acct.Discord = in.Discord
	}
	if in.Github != nil {
		acct.Github = in.Github
	}
	if in.Country != nil {
		acct.Country = in.Country
	}
	if in.HumanVerified {
		acct.HumanVerified = true
	}
	acct.Attribution = mergeAttribution(acct.Attribution, in.Attribution)

	if acct.ReferralCode != nil {
		return db.Save(acct).Error
	}

	for attempt := 0; attempt < mintAttempts; attempt++ {
		code := newCodeCandidate(acct.Email)
		acct.ReferralCode = &code
		err := db.Save(acct).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
	}
	log.Printf("❌ [ATTRIBUTION] referral-code minting exhausted %d attempts for %s", mintAttempts, acct.Email)
	return ErrCodeExhausted
}

// recordSignupEdge resolves the supplied code and appends the SIGNUP ledger
// event. Unknown codes and self-referrals are silently ignored; a duplicate
// edge (retried signup) is a success, not an error.
func (s *AttributionService) recordSignupEdge(db *gorm.DB, code string, acct *models.Account) error {
	var referrer models.Account
	err := db.Where("referral_code = ?", code).First(&referrer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("ℹ️ [ATTRIBUTION] referral code %s does not resolve — signup proceeds uncredited", code)
		return nil
	}
	if err != nil {
		return err
	}
	if referrer.ID == acct.ID {
		return nil // no self-referral edge
	}

	// Edge insert and mirror write commit together — a half-applied pair must
	// never be visible.
	return db.Transaction(func(tx *gorm.DB) error {
		evt := models.ReferralEvent{
			ID:         uuid.NewString(),
			ReferrerID: referrer.ID,
			RefereeID:  acct.ID,
			Kind:       models.ReferralKindSignup,
		}
		if err := tx.Create(&evt).Error; err != nil {
			if !errors.Is(err, gorm.ErrDuplicatedKey) {
				return err
			}
			// Edge already recorded by an earlier attempt. Fall through so the
			// mirror still backfills if that attempt never got to write it.
		}

		// Denormalized mirror of the edge; written once, ledger stays authoritative.
		if acct.ReferredBy == nil {
			if err := tx.Model(&models.Account{}).
				Where("id = ? AND referred_by IS NULL", acct.ID).
				Update("referred_by", referrer.ID).Error; err != nil {
				return err
			}
			acct.ReferredBy = &referrer.ID
		}
		return nil
	})
}

// VerifyEmail marks the account verified and, if a SIGNUP edge credits this
// account, awards the referrer a VERIFIED ledger event. Awarded is true only
// when this call actually inserted the row — a retried verification reports
// false without erroring.
func (s *AttributionService) VerifyEmail(ctx context.Context, accountID string) (*VerifyResult, error) {
	db := s.DB.WithContext(ctx)

	var acct models.Account
	if err := db.Where("id = ?", accountID).First(&acct).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	already := acct.EmailVerified
	// Idempotent write: set the flag regardless, the ledger's unique index
	// protects against double awards, not a short-circuit here.
	if err := db.Model(&models.Account{}).
		Where("id = ?", acct.ID).
		Update("email_verified", true).Error; err != nil {
		return nil, err
	}

	var signup models.ReferralEvent
	err := db.Where("referee_id = ? AND kind = ?", acct.ID, models.ReferralKindSignup).
		Order("created_at DESC").
		First(&signup).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &VerifyResult{AlreadyVerified: already}, nil
	}
	if err != nil {
		return nil, err
	}

	evt := models.ReferralEvent{
		ID:         uuid.NewString(),
		ReferrerID: signup.ReferrerID,
		RefereeID:  acct.ID,
		Kind:       models.ReferralKindVerified,
	}
	if err := db.Create(&evt).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return &VerifyResult{AlreadyVerified: already}, nil
		}
		return nil, err
	}
	return &VerifyResult{AlreadyVerified: already, Awarded: true}, nil
}

// newCodeCandidate derives a human-legible code: the alphanumeric form of the
// email's local part (first 6 chars, uppercased) plus a 4-char random
// alphanumeric suffix. Collisions are resolved by the caller retrying.
func newCodeCandidate(email string) string {
	local := email
	if i := strings.Index(email, "@"); i >= 0 {
		local = email[:i]
	}
	prefix := strings.ToUpper(strings.ReplaceAll(slug.Make(local), "-", ""))
	if len(prefix) > codePrefixLen {
		prefix = prefix[:codePrefixLen]
	}
	if prefix == "" {
		prefix = "DEV"
	}
	suffix := make([]byte, codeSuffixLen)
	for i := range suffix {
		suffix[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
	}
	return prefix + string(suffix)
}

func mergeAttribution(existing datatypes.JSONMap, incoming map[string]string) datatypes.JSONMap {
	if len(incoming) == 0 {
		return existing
	}
	merged := datatypes.JSONMap{}
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range incoming {
		if v != "" {
			merged[k] = v
		}
	}
	return merged
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
