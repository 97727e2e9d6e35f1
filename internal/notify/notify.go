// Package notify sends email alerts for thermal events.
//
// SMTP credentials come from the environment (loaded from .env by the
// config package) and are never written anywhere else. Sends are
// rate-limited per event kind: the CanSend/MarkSent pair is checked
// synchronously on the monitoring tick, before the asynchronous send
// is dispatched, so two overlapping episodes can't both pass the check.
package notify

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/wneessen/go-mail"
)

// Default rate limit: at most one email per event kind per 5 minutes.
const defaultRateLimit = 5 * time.Minute

const (
	defaultSMTPServer = "smtp.gmail.com"
	defaultSMTPPort   = 587
)

// EventKind identifies an alert type for subject lines and rate
// limiting.
type EventKind int

const (
	// ThermalCritical: temperature crossed the critical threshold.
	ThermalCritical EventKind = iota
	// ThermalEmergency: sustained emergency temperature.
	ThermalEmergency
	// ShutdownImminent: grace period started.
	ShutdownImminent
	// Recovered: temperature returned to normal.
	Recovered
	// Test: operator-triggered test email.
	Test
)

// Subject returns the email subject line for the event kind.
func (k EventKind) Subject() string {
	switch k {
	case ThermalCritical:
		return "[Sentinel] CRITICAL: Temperature threshold exceeded"
	case ThermalEmergency:
		return "[Sentinel] EMERGENCY: Sustained high temperature"
	case ShutdownImminent:
		return "[Sentinel] SHUTDOWN IMMINENT: Auto-shutdown triggered"
	case Recovered:
		return "[Sentinel] RECOVERED: Temperature returned to normal"
	default:
		return "[Sentinel] Test email - notifications working"
	}
}

// SMTPConfig holds the transport settings loaded from the environment.
type SMTPConfig struct {
	Server    string
	Port      int
	Username  string
	Password  string
	Recipient string
}

// SMTPConfigFromEnv loads SMTP settings. Returns false when the
// required credentials are missing, and the agent then runs without email.
func SMTPConfigFromEnv() (SMTPConfig, bool) {
	cfg := SMTPConfig{
		Username:  os.Getenv("SENTINEL_SMTP_USER"),
		Password:  os.Getenv("SENTINEL_SMTP_PASSWORD"),
		Recipient: os.Getenv("SENTINEL_SMTP_RECIPIENT"),
		Server:    os.Getenv("SENTINEL_SMTP_SERVER"),
		Port:      defaultSMTPPort,
	}
	if cfg.Username == "" || cfg.Password == "" || cfg.Recipient == "" {
		return SMTPConfig{}, false
	}
	if cfg.Server == "" {
		cfg.Server = defaultSMTPServer
	}
	if p := os.Getenv("SENTINEL_SMTP_PORT"); p != "" {
		if port, err := strconv.Atoi(p); err == nil {
			cfg.Port = port
		}
	}
	return cfg, true
}

// Notifier sends rate-limited alert emails.
type Notifier struct {
	cfg       SMTPConfig
	rateLimit time.Duration

	mu       sync.Mutex
	lastSent map[EventKind]time.Time

	now func() time.Time
}

// New creates a notifier from SMTP config.
func New(cfg SMTPConfig) *Notifier {
	return &Notifier{
		cfg:       cfg,
		rateLimit: defaultRateLimit,
		lastSent:  make(map[EventKind]time.Time),
		now:       time.Now,
	}
}

// FromEnv creates a notifier if SMTP credentials are configured.
func FromEnv() (*Notifier, bool) {
	cfg, ok := SMTPConfigFromEnv()
	if !ok {
		return nil, false
	}
	return New(cfg), true
}

// CanSend reports whether the rate limit allows a send for this kind.
func (n *Notifier) CanSend(kind EventKind) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	last, ok := n.lastSent[kind]
	return !ok || n.now().Sub(last) >= n.rateLimit
}

// MarkSent records a send for rate limiting. Callers mark before
// dispatching the asynchronous send so the check-and-mark stays atomic
// relative to the tick that triggered it.
func (n *Notifier) MarkSent(kind EventKind) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lastSent[kind] = n.now()
}

// TrySend performs the synchronous check-and-mark and returns whether
// the caller may dispatch the actual send.
func (n *Notifier) TrySend(kind EventKind) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	last, ok := n.lastSent[kind]
	if ok && n.now().Sub(last) < n.rateLimit {
		return false
	}
	n.lastSent[kind] = n.now()
	return true
}

// Send delivers one email. No rate-limit check here; callers do that
// via TrySend before dispatching.
func (n *Notifier) Send(ctx context.Context, kind EventKind, body string) error {
	msg := mail.NewMsg()
	if err := msg.From(n.cfg.Username); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(n.cfg.Recipient); err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(kind.Subject())
	msg.SetBodyString(mail.TypeTextPlain, body)

	client, err := mail.NewClient(n.cfg.Server,
		mail.WithPort(n.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(n.cfg.Username),
		mail.WithPassword(n.cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// SendTest delivers a test email, bypassing the rate limit.
func (n *Notifier) SendTest(ctx context.Context, hostname string) error {
	body := fmt.Sprintf(
		"Sentinel email notifications are working.\n\n"+
			"Host: %s\nSMTP Server: %s:%d\nFrom: %s\nTo: %s\n\n"+
			"This is a test email sent from the operator surface.",
		hostname, n.cfg.Server, n.cfg.Port, n.cfg.Username, n.cfg.Recipient,
	)
	if err := n.Send(ctx, Test, body); err != nil {
		return err
	}
	n.MarkSent(Test)
	return nil
}

// AlertBody builds the plain-text body for a thermal alert email.
func AlertBody(kind EventKind, temp float32, sensor, hostname string) string {
	timestamp := time.Now().Format("2006-01-02 15:04:05")

	switch kind {
	case ThermalCritical:
		return fmt.Sprintf(
			"Sentinel Thermal Alert\n======================\n\n"+
				"Severity: CRITICAL\nSensor: %s\nTemperature: %.1f°C\nHost: %s\nTime: %s\n\n"+
				"The temperature has exceeded the critical threshold.\n"+
				"If this persists, auto-shutdown may be triggered.",
			sensor, temp, hostname, timestamp)
	case ThermalEmergency:
		return fmt.Sprintf(
			"Sentinel Thermal EMERGENCY\n==========================\n\n"+
				"Severity: EMERGENCY\nSensor: %s\nTemperature: %.1f°C\nHost: %s\nTime: %s\n\n"+
				"Temperature has been at emergency levels for a sustained period.\n"+
				"Auto-shutdown may be initiated if enabled.",
			sensor, temp, hostname, timestamp)
	case ShutdownImminent:
		return fmt.Sprintf(
			"Sentinel AUTO-SHUTDOWN IMMINENT\n===============================\n\n"+
				"Severity: EMERGENCY\nSensor: %s\nTemperature: %.1f°C\nHost: %s\nTime: %s\n\n"+
				"The system will shut down when the grace period expires unless:\n"+
				"- Temperature drops below the critical threshold\n"+
				"- An operator aborts via the agent API\n\n"+
				"This shutdown is to protect hardware from thermal damage.",
			sensor, temp, hostname, timestamp)
	case Recovered:
		return fmt.Sprintf(
			"Sentinel Recovery Notice\n========================\n\n"+
				"Status: RECOVERED\nSensor: %s\nCurrent Temperature: %.1f°C\nHost: %s\nTime: %s\n\n"+
				"Temperature has returned to safe levels. The system is operating normally.",
			sensor, temp, hostname, timestamp)
	default:
		return fmt.Sprintf("Sentinel Test Email\nHost: %s\nTime: %s", hostname, timestamp)
	}
}
