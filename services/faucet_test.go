package services

import (
	"context"
	"testing"
	"time"

	"devnet-waitlist-system/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFaucet(t *testing.T) *FaucetService {
	return &FaucetService{DB: newTestDB(t), MaxClaim: decimal.NewFromInt(10)}
}

func TestSubmitClaimStoresExactAmount(t *testing.T) {
	svc := newFaucet(t)

	claim, err := svc.SubmitClaim(context.Background(), ClaimInput{
		Address:  "devnet1qxyzabc",
		Amount:   "1.000000000001", // 12 decimal places, not representable in float64
		ClientIP: "203.0.113.9",
	})
	require.NoError(t, err)
	assert.Equal(t, "1.000000000001", claim.Amount)
	assert.Equal(t, models.ClaimStatusPending, claim.Status)
	assert.NotEmpty(t, claim.IPHash)
	assert.NotEqual(t, "203.0.113.9", claim.IPHash, "raw IP must never be stored")
}

func TestSubmitClaimLinksAccountByEmail(t *testing.T) {
	svc := newFaucet(t)
	attribution := NewAttributionService(svc.DB)

	res, err := attribution.Signup(context.Background(), SignupInput{Email: "Claimer@X.com"})
	require.NoError(t, err)

	claim, err := svc.SubmitClaim(context.Background(), ClaimInput{
		Email:   "claimer@x.com",
		Address: "devnet1claimer",
		Amount:  "2.5",
	})
	require.NoError(t, err)
	require.NotNil(t, claim.AccountID)
	assert.Equal(t, res.AccountID, *claim.AccountID)

	unlinked, err := svc.SubmitClaim(context.Background(), ClaimInput{
		Email:   "stranger@x.com",
		Address: "devnet1stranger",
		Amount:  "2.5",
	})
	require.NoError(t, err)
	assert.Nil(t, unlinked.AccountID, "unknown email records an unlinked claim, not an error")
}

func TestSubmitClaimRejectsBadInput(t *testing.T) {
	svc := newFaucet(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   ClaimInput
		want error
	}{
		{"short address", ClaimInput{Address: "abc", Amount: "1"}, ErrInvalidAddress},
		{"not a number", ClaimInput{Address: "devnet1qxyzabc", Amount: "ten"}, ErrInvalidAmount},
		{"zero", ClaimInput{Address: "devnet1qxyzabc", Amount: "0"}, ErrInvalidAmount},
		{"negative", ClaimInput{Address: "devnet1qxyzabc", Amount: "-1"}, ErrInvalidAmount},
		{"over cap", ClaimInput{Address: "devnet1qxyzabc", Amount: "10.000000000001"}, ErrInvalidAmount},
		{"too many decimals", ClaimInput{Address: "devnet1qxyzabc", Amount: "0.0000000000001"}, ErrInvalidAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.SubmitClaim(ctx, tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestSubmitClaimOnePendingPerAddress(t *testing.T) {
	svc := newFaucet(t)
	ctx := context.Background()

	_, err := svc.SubmitClaim(ctx, ClaimInput{Address: "devnet1qxyzabc", Amount: "1"})
	require.NoError(t, err)

	_, err = svc.SubmitClaim(ctx, ClaimInput{Address: "devnet1qxyzabc", Amount: "1"})
	assert.ErrorIs(t, err, ErrClaimPending)

	// a settled claim frees the address
	require.NoError(t, svc.DB.Model(&models.FaucetClaim{}).
		Where("address = ?", "devnet1qxyzabc").
		Update("status", models.ClaimStatusSent).Error)

	_, err = svc.SubmitClaim(ctx, ClaimInput{Address: "devnet1qxyzabc", Amount: "1"})
	assert.NoError(t, err)
}

func TestExpireStaleClaims(t *testing.T) {
	svc := newFaucet(t)
	now := time.Now().UTC()

	stale := models.FaucetClaim{
		ID:         uuid.NewString(),
		Address:    "devnet1stale",
		Amount:     "1",
		Status:     models.ClaimStatusPending,
		Timestamps: models.Timestamps{CreatedAt: now.Add(-48 * time.Hour)},
	}
	fresh := models.FaucetClaim{
		ID:      uuid.NewString(),
		Address: "devnet1fresh",
		Amount:  "1",
		Status:  models.ClaimStatusPending,
	}
	require.NoError(t, svc.DB.Create(&stale).Error)
	require.NoError(t, svc.DB.Create(&fresh).Error)

	n, err := svc.expireStaleClaims(now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	var reloaded models.FaucetClaim
	require.NoError(t, svc.DB.First(&reloaded, "id = ?", stale.ID).Error)
	assert.Equal(t, models.ClaimStatusRejected, reloaded.Status)
	require.NotNil(t, reloaded.RejectReason)
	assert.Equal(t, "expired", *reloaded.RejectReason)

	var untouched models.FaucetClaim
	require.NoError(t, svc.DB.First(&untouched, "id = ?", fresh.ID).Error)
	assert.Equal(t, models.ClaimStatusPending, untouched.Status)
}

func TestListClaimsNewestFirst(t *testing.T) {
	svc := newFaucet(t)
	now := time.Now().UTC()

	for i, age := range []time.Duration{3 * time.Hour, 2 * time.Hour, time.Hour} {
		claim := models.FaucetClaim{
			ID:         uuid.NewString(),
			Address:    "devnet1lister",
			Amount:     "1",
			Status:     models.ClaimStatusSent,
			Timestamps: models.Timestamps{CreatedAt: now.Add(-age)},
		}
		require.NoError(t, svc.DB.Create(&claim).Error, "claim %d", i)
	}

	claims, err := svc.ListClaims(context.Background(), "devnet1lister")
	require.NoError(t, err)
	require.Len(t, claims, 3)
	assert.True(t, claims[0].CreatedAt.After(claims[1].CreatedAt))
	assert.True(t, claims[1].CreatedAt.After(claims[2].CreatedAt))
}
