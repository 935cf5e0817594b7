package handlers

import (
	"errors"
	"log"
	"time"

	"devnet-waitlist-system/middleware"
	"devnet-waitlist-system/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type claimRequest struct {
	Email   string `json:"email"`
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

func SetupFaucetRoutes(app *fiber.App, faucet *services.FaucetService) {
	api := app.Group("/api/v1/faucet")

	claimLimiter := limiter.New(limiter.Config{
		Max:        5,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return middleware.ResolvedIP(c)
		},
	})

	api.Post("/claim", claimLimiter, func(c *fiber.Ctx) error {
		var req claimRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}

		claim, err := faucet.SubmitClaim(c.UserContext(), services.ClaimInput{
			Email:    req.Email,
			Address:  req.Address,
			Amount:   req.Amount,
			ClientIP: middleware.ResolvedIP(c),
		})
		switch {
		case errors.Is(err, services.ErrInvalidAddress):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "a valid address is required"})
		case errors.Is(err, services.ErrInvalidAmount):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid claim amount"})
		case errors.Is(err, services.ErrClaimPending):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "a claim for this address is already pending"})
		case err != nil:
			log.Printf("❌ [FAUCET] claim failed for %s: %v", req.Address, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
		}

		return c.Status(fiber.StatusCreated).JSON(claim)
	})

	api.Get("/claims/:address", func(c *fiber.Ctx) error {
		claims, err := faucet.ListClaims(c.UserContext(), c.Params("address"))
		if err != nil {
			log.Printf("❌ [FAUCET] list failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
		}
		return c.JSON(fiber.Map{"claims": claims})
	})
}
