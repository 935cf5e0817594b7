package services

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/wneessen/go-mail"
)

// Mailer sends the verification email. Delivery is best-effort: callers fire
// it on a goroutine and a failure never blocks the signup response.
type Mailer struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Enabled  bool
}

func NewMailerFromEnv() *Mailer {
	host := os.Getenv("SMTP_HOST")
	if host == "" {
		log.Println("⚠️  SMTP_HOST not set — verification emails disabled")
		return &Mailer{Enabled: false}
	}
	port := 587
	if p := os.Getenv("SMTP_PORT"); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil {
			port = parsed
		} else {
			log.Printf("⚠️  Invalid SMTP_PORT %q, using 587", p)
		}
	}
	from := os.Getenv("SMTP_FROM")
	if from == "" {
		from = "waitlist@devnet.example.org"
	}
	return &Mailer{
		Host:     host,
		Port:     port,
		Username: os.Getenv("SMTP_USERNAME"),
		Password: os.Getenv("SMTP_PASSWORD"),
		From:     from,
		Enabled:  true,
	}
}

func (m *Mailer) SendVerificationEmail(to, link string) error {
	if !m.Enabled {
		return nil
	}

	msg := mail.NewMsg()
	if err := msg.From(m.From); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject("Confirm your devnet waitlist signup")
	msg.SetBodyString(mail.TypeTextPlain, fmt.Sprintf(
		"Welcome to the devnet waitlist!\n\n"+
			"Confirm your email by opening the link below (valid for 48 hours):\n\n"+
			"%s\n\n"+
			"If you did not sign up, you can ignore this message.\n", link))

	opts := []mail.Option{
		mail.WithPort(m.Port),
		mail.WithTimeout(10 * time.Second),
	}
	if m.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.Username),
			mail.WithPassword(m.Password),
		)
	}
	client, err := mail.NewClient(m.Host, opts...)
	if err != nil {
		return fmt.Errorf("failed to build SMTP client: %w", err)
	}
	if err := client.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send verification email: %w", err)
	}
	return nil
}
