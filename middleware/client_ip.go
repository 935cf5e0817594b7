package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ClientIP resolves the real client address behind the usual proxy headers
// and stashes it in Locals for the human-check call and claim-ledger hashing.
func ClientIP() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ip := c.Get("CF-Connecting-IP")
		if ip == "" {
			if fwd := c.Get("X-Forwarded-For"); fwd != "" {
				ip = strings.TrimSpace(strings.Split(fwd, ",")[0])
			}
		}
		if ip == "" {
			ip = c.Get("X-Real-IP")
		}
		if ip == "" {
			ip = c.IP()
		}
		c.Locals("client_ip", ip)
		return c.Next()
	}
}

// ResolvedIP reads the address stored by ClientIP, falling back to the
// transport-level one.
func ResolvedIP(c *fiber.Ctx) string {
	if ip, ok := c.Locals("client_ip").(string); ok && ip != "" {
		return ip
	}
	return c.IP()
}
