package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	WindowWeek  = "week"
	WindowMonth = "month"
	WindowAll   = "all"

	DefaultSignupWeight   = 1
	DefaultVerifiedWeight = 2
	DefaultLeaderboardLim = 20
	MaxLeaderboardLim     = 100
)

// LeaderboardService derives a ranked, weighted view of the referral ledger.
// Read-only: output is a pure function of ledger + identity state at call time.
type LeaderboardService struct {
	DB *gorm.DB
}

func NewLeaderboardService(db *gorm.DB) *LeaderboardService {
	return &LeaderboardService{DB: db}
}

type LeaderboardParams struct {
	Window         string // week | month | all
	Limit          int
	MinPoints      int64
	SignupWeight   int64
	VerifiedWeight int64
}

type LeaderboardRow struct {
	Rank         int    `json:"rank"`
	Name         string `json:"name"` // masked, never the email
	ReferralCode string `json:"referral_code"`
	Signups      int64  `json:"signups"`
	Verified     int64  `json:"verified"`
	Points       int64  `json:"points"`
}

type LeaderboardResult struct {
	Window         string           `json:"window"`
	SignupWeight   int64            `json:"signup_weight"`
	VerifiedWeight int64            `json:"verified_weight"`
	Rows           []LeaderboardRow `json:"leaderboard"`
}

// referrerCounts is the raw aggregation row before weighting and masking.
type referrerCounts struct {
	ID           string
	Email        string
	ReferralCode string
	CreatedAt    time.Time
	Signups      int64
	Verified     int64
}

// Query ranks every account holding a referral code by weighted in-window
// event counts. Ties break by verified desc, then signups desc, then earliest
// joiner — deterministic ordering for pagination-free display.
func (s *LeaderboardService) Query(ctx context.Context, p LeaderboardParams) (*LeaderboardResult, error) {
	p = normalizeParams(p)
	since := windowStart(p.Window, time.Now().UTC())

	var counts []referrerCounts
	err := s.DB.WithContext(ctx).Raw(`
		SELECT a.id, a.email, a.referral_code, a.created_at,
		       COALESCE(SUM(CASE WHEN e.kind = 'SIGNUP'   AND e.created_at >= ? THEN 1 ELSE 0 END), 0) AS signups,
		       COALESCE(SUM(CASE WHEN e.kind = 'VERIFIED' AND e.created_at >= ? THEN 1 ELSE 0 END), 0) AS verified
		FROM accounts a
		LEFT JOIN referral_events e ON e.referrer_id = a.id
		WHERE a.referral_code IS NOT NULL AND a.deleted_at IS NULL
		GROUP BY a.id, a.email, a.referral_code, a.created_at
	`, since, since).Scan(&counts).Error
	if err != nil {
		return nil, err
	}

	type scored struct {
		referrerCounts
		points int64
	}
	ranked := make([]scored, 0, len(counts))
	for _, c := range counts {
		pts := c.Signups*p.SignupWeight + c.Verified*p.VerifiedWeight
		if pts < p.MinPoints {
			continue
		}
		ranked = append(ranked, scored{referrerCounts: c, points: pts})
	}

	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.points != b.points {
			return a.points > b.points
		}
		if a.Verified != b.Verified {
			return a.Verified > b.Verified
		}
		if a.Signups != b.Signups {
			return a.Signups > b.Signups
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})

	if len(ranked) > p.Limit {
		ranked = ranked[:p.Limit]
	}

	rows := make([]LeaderboardRow, len(ranked))
	for i, r := range ranked {
		rows[i] = LeaderboardRow{
			Rank:         i + 1,
			Name:         maskEmail(r.Email),
			ReferralCode: r.ReferralCode,
			Signups:      r.Signups,
			Verified:     r.Verified,
			Points:       r.points,
		}
	}

	return &LeaderboardResult{
		Window:         p.Window,
		SignupWeight:   p.SignupWeight,
		VerifiedWeight: p.VerifiedWeight,
		Rows:           rows,
	}, nil
}

func normalizeParams(p LeaderboardParams) LeaderboardParams {
	switch p.Window {
	case WindowWeek, WindowMonth, WindowAll:
	default:
		p.Window = WindowWeek
	}
	switch {
	case p.Limit == 0:
		p.Limit = DefaultLeaderboardLim
	case p.Limit < 1:
		p.Limit = 1
	case p.Limit > MaxLeaderboardLim:
		p.Limit = MaxLeaderboardLim
	}
	if p.SignupWeight < 0 {
		p.SignupWeight = DefaultSignupWeight
	}
	if p.VerifiedWeight < 0 {
		p.VerifiedWeight = DefaultVerifiedWeight
	}
	if p.MinPoints < 0 {
		p.MinPoints = 0
	}
	return p
}

func windowStart(window string, now time.Time) time.Time {
	switch window {
	case WindowMonth:
		return now.AddDate(0, 0, -30)
	case WindowAll:
		return time.Time{}
	default:
		return now.Add(-7 * 24 * time.Hour)
	}
}

// maskEmail exposes at most the first 3 runes of the local part. Rune-wise,
// so a multibyte local part never yields invalid UTF-8.
func maskEmail(email string) string {
	local := email
	if i := strings.Index(email, "@"); i >= 0 {
		local = email[:i]
	}
	runes := []rune(local)
	if len(runes) > 3 {
		runes = runes[:3]
	}
	return string(runes) + "***"
}
