package handlers

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"devnet-waitlist-system/middleware"
	"devnet-waitlist-system/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type signupRequest struct {
	Email      string  `json:"email"`
	Role       *string `json:"role"`
	Experience *string `json:"experience"`
	Discord    *string `json:"discord"`
	Github     *string `json:"github"`
	Country    *string `json:"country"`

	// ReferralCode is the user-typed field; Ref is auto-captured from the
	// landing URL. User-typed wins.
	ReferralCode string `json:"referral_code"`
	Ref          string `json:"ref"`

	UTMSource   string `json:"utm_source"`
	UTMMedium   string `json:"utm_medium"`
	UTMCampaign string `json:"utm_campaign"`
	UTMContent  string `json:"utm_content"`
	UTMTerm     string `json:"utm_term"`

	// The human-check token arrives under one of several field names
	// depending on which form widget produced it.
	TurnstileToken      string `json:"turnstile_token"`
	CaptchaToken        string `json:"captcha_token"`
	CFTurnstileResponse string `json:"cf_turnstile_response"`
}

func (r *signupRequest) humanToken() string {
	for _, t := range []string{r.TurnstileToken, r.CaptchaToken, r.CFTurnstileResponse} {
		if t != "" {
			return t
		}
	}
	return ""
}

func (r *signupRequest) referralCode() string {
	if r.ReferralCode != "" {
		return r.ReferralCode
	}
	return r.Ref
}

func (r *signupRequest) attribution() map[string]string {
	attr := map[string]string{}
	for k, v := range map[string]string{
		"utm_source":   r.UTMSource,
		"utm_medium":   r.UTMMedium,
		"utm_campaign": r.UTMCampaign,
		"utm_content":  r.UTMContent,
		"utm_term":     r.UTMTerm,
	} {
		if v != "" {
			attr[k] = v
		}
	}
	return attr
}

func SetupWaitlistRoutes(
	app *fiber.App,
	attribution *services.AttributionService,
	leaderboard *services.LeaderboardService,
	metrics *services.MetricsService,
	turnstile *services.TurnstileClient,
	tokens *services.TokenService,
	mailer *services.Mailer,
) {
	api := app.Group("/api/v1")

	signupLimiter := limiter.New(limiter.Config{
		Max:        10,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return middleware.ResolvedIP(c)
		},
	})

	api.Post("/waitlist", signupLimiter, func(c *fiber.Ctx) error {
		var req signupRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		if !strings.Contains(req.Email, "@") {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "a valid email is required"})
		}
		token := req.humanToken()
		if token == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "human verification token is required"})
		}

		clientIP := middleware.ResolvedIP(c)
		human, err := turnstile.Verify(c.UserContext(), token, clientIP)
		if err != nil {
			log.Printf("❌ [WAITLIST] turnstile call failed: %v", err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "human verification unavailable, try again"})
		}
		if !human {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "human verification failed"})
		}

		res, err := attribution.Signup(c.UserContext(), services.SignupInput{
			Email:         req.Email,
			Role:          req.Role,
			Experience:    req.Experience,
			Discord:       req.Discord,
			Github:        req.Github,
			Country:       req.Country,
			ReferralCode:  req.referralCode(),
			Attribution:   req.attribution(),
			HumanVerified: true,
		})
		if err != nil {
			log.Printf("❌ [WAITLIST] signup failed for %s: %v", services.NormalizeEmail(req.Email), err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
		}

		emailQueued := false
		if mailer.Enabled {
			credential, err := tokens.Issue(res.AccountID)
			if err != nil {
				log.Printf("❌ [WAITLIST] failed to issue verification credential: %v", err)
			} else {
				link := fmt.Sprintf("%s/api/v1/verify-email?token=%s&redirect=1", publicBaseURL(), credential)
				to := services.NormalizeEmail(req.Email)
				// Best-effort: delivery failure must not block the signup response.
				go func() {
					if err := mailer.SendVerificationEmail(to, link); err != nil {
						log.Printf("⚠️  [WAITLIST] verification email to %s failed: %v", to, err)
					}
				}()
				emailQueued = true
			}
		}

		status := fiber.StatusOK
		if res.IsNewAccount {
			status = fiber.StatusCreated
		}
		return c.Status(status).JSON(fiber.Map{
			"account_id":    res.AccountID,
			"referral_code": res.ReferralCode,
			"email_queued":  emailQueued,
			"is_new":        res.IsNewAccount,
		})
	})

	verifyHandler := func(c *fiber.Ctx) error {
		credential := verificationCredential(c)
		if credential == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "verification token is required"})
		}
		accountID, err := tokens.Consume(credential)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid or expired verification token"})
		}

		res, err := attribution.VerifyEmail(c.UserContext(), accountID)
		if err != nil {
			if errors.Is(err, services.ErrAccountNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "account not found"})
			}
			log.Printf("❌ [VERIFY] verification failed for %s: %v", accountID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
		}

		redirectTo := os.Getenv("VERIFY_REDIRECT_URL")
		if redirectTo == "" {
			redirectTo = "/"
		}
		if c.Query("redirect") == "1" {
			return c.Redirect(redirectTo, fiber.StatusFound)
		}
		return c.JSON(fiber.Map{
			"verified":         true,
			"already_verified": res.AlreadyVerified,
			"awarded":          res.Awarded,
			"redirect_to":      redirectTo,
		})
	}
	api.Get("/verify-email", verifyHandler)
	api.Post("/verify-email", verifyHandler)

	api.Get("/leaderboard", func(c *fiber.Ctx) error {
		params := services.LeaderboardParams{
			Window:         c.Query("window", services.WindowWeek),
			Limit:          c.QueryInt("limit", services.DefaultLeaderboardLim),
			MinPoints:      int64(c.QueryInt("min_points", 0)),
			SignupWeight:   int64(c.QueryInt("signup_weight", services.DefaultSignupWeight)),
			VerifiedWeight: int64(c.QueryInt("verified_weight", services.DefaultVerifiedWeight)),
		}
		result, err := leaderboard.Query(c.UserContext(), params)
		if err != nil {
			log.Printf("❌ [LEADERBOARD] query failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
		}
		return c.JSON(result)
	})

	api.Get("/metrics", func(c *fiber.Ctx) error {
		snap, err := metrics.Snapshot(c.UserContext())
		if err != nil {
			log.Printf("❌ [METRICS] snapshot failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
		}
		return c.JSON(snap)
	})

	api.Get("/config", func(c *fiber.Ctx) error {
		network := os.Getenv("DEVNET_NAME")
		if network == "" {
			network = "devnet"
		}
		return c.JSON(fiber.Map{
			"network":                network,
			"signup_open":            true,
			"verification_ttl_hours": int(tokens.TTL.Hours()),
			"leaderboard_weights": fiber.Map{
				"signup":   services.DefaultSignupWeight,
				"verified": services.DefaultVerifiedWeight,
			},
		})
	})
}

// verificationCredential pulls the token from the query param, then the JSON
// body, then the Bearer header — in that preference order.
func verificationCredential(c *fiber.Ctx) string {
	if t := c.Query("token"); t != "" {
		return t
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := c.BodyParser(&body); err == nil && body.Token != "" {
		return body.Token
	}
	auth := c.Get("Authorization")
	if token := strings.TrimPrefix(auth, "Bearer "); token != auth {
		return token
	}
	return ""
}

func publicBaseURL() string {
	if base := os.Getenv("PUBLIC_BASE_URL"); base != "" {
		return strings.TrimRight(base, "/")
	}
	return "http://localhost:5100"
}
