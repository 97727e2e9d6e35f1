package notify

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNotifier() *Notifier {
	return New(SMTPConfig{
		Server:    "localhost",
		Port:      587,
		Username:  "test@test.com",
		Password:  "pass",
		Recipient: "dest@test.com",
	})
}

func TestSMTPConfigFromEnvMissing(t *testing.T) {
	os.Unsetenv("SENTINEL_SMTP_USER")
	os.Unsetenv("SENTINEL_SMTP_PASSWORD")
	os.Unsetenv("SENTINEL_SMTP_RECIPIENT")

	_, ok := SMTPConfigFromEnv()
	assert.False(t, ok)
}

func TestSMTPConfigFromEnvComplete(t *testing.T) {
	os.Setenv("SENTINEL_SMTP_USER", "me@example.com")
	os.Setenv("SENTINEL_SMTP_PASSWORD", "hunter2")
	os.Setenv("SENTINEL_SMTP_RECIPIENT", "ops@example.com")
	os.Setenv("SENTINEL_SMTP_PORT", "2525")
	defer func() {
		os.Unsetenv("SENTINEL_SMTP_USER")
		os.Unsetenv("SENTINEL_SMTP_PASSWORD")
		os.Unsetenv("SENTINEL_SMTP_RECIPIENT")
		os.Unsetenv("SENTINEL_SMTP_PORT")
	}()

	cfg, ok := SMTPConfigFromEnv()
	require.True(t, ok)
	assert.Equal(t, "me@example.com", cfg.Username)
	assert.Equal(t, "ops@example.com", cfg.Recipient)
	assert.Equal(t, defaultSMTPServer, cfg.Server)
	assert.Equal(t, 2525, cfg.Port)
}

func TestRateLimiting(t *testing.T) {
	n := testNotifier()

	assert.True(t, n.CanSend(ThermalCritical))

	n.MarkSent(ThermalCritical)
	assert.False(t, n.CanSend(ThermalCritical))

	// Different event kind is tracked independently
	assert.True(t, n.CanSend(Recovered))

	// Cooldown expires
	n.now = func() time.Time { return time.Now().Add(defaultRateLimit + time.Second) }
	assert.True(t, n.CanSend(ThermalCritical))
}

func TestTrySendChecksAndMarksAtomically(t *testing.T) {
	n := testNotifier()

	assert.True(t, n.TrySend(ShutdownImminent))
	// Second attempt within the window must fail; the first TrySend
	// already recorded the send
	assert.False(t, n.TrySend(ShutdownImminent))
	assert.False(t, n.CanSend(ShutdownImminent))
}

func TestSubjects(t *testing.T) {
	assert.Contains(t, ThermalCritical.Subject(), "CRITICAL")
	assert.Contains(t, ThermalEmergency.Subject(), "EMERGENCY")
	assert.Contains(t, ShutdownImminent.Subject(), "SHUTDOWN")
	assert.Contains(t, Recovered.Subject(), "RECOVERED")
	assert.Contains(t, Test.Subject(), "Test")
}

func TestAlertBody(t *testing.T) {
	body := AlertBody(ThermalCritical, 98.5, "CPU Package", "my-pc")
	assert.Contains(t, body, "CRITICAL")
	assert.Contains(t, body, "CPU Package")
	assert.Contains(t, body, "98.5°C")
	assert.Contains(t, body, "my-pc")

	body = AlertBody(ShutdownImminent, 101.0, "GPU Hot Spot", "my-pc")
	assert.Contains(t, body, "SHUTDOWN")
	assert.Contains(t, body, "abort")
}
