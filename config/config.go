package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the agent
type Config struct {
	// Server settings
	Port         int
	Host         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Authentication
	APIKey    string
	JWTSecret string

	// Security
	AllowedOrigins []string
	RateLimitRPS   int

	// Features
	DockerEnabled bool

	// Logging
	LogLevel string

	// Thermal monitoring
	Thermal ThermalConfig

	// Email notifications
	EmailEnabled bool
}

// ThermalConfig holds the LibreHardwareMonitor polling and
// auto-shutdown settings.
type ThermalConfig struct {
	// LHM HTTP JSON endpoint (http://localhost:8085/data.json by default)
	URL string
	// Optional basic-auth credentials passed through to LHM
	Username string
	Password string
	// Polling interval
	PollInterval time.Duration
	// Temperature thresholds in Celsius: warning < critical < emergency
	WarningThreshold   float32
	CriticalThreshold  float32
	EmergencyThreshold float32
	// Seconds the emergency temperature must be sustained before the
	// grace period starts
	SustainedSecs int
	// Grace period seconds before the power-off command is invoked
	GraceSecs int
	// Auto-shutdown config gate. The state machine additionally
	// requires the SENTINEL_AUTO_SHUTDOWN env flag.
	AutoShutdownEnabled bool
	// Active schedule window hours, [start, end). End of 24 means
	// through midnight; start > end wraps past midnight.
	ScheduleStartHour int
	ScheduleEndHour   int
}

// Defaults mirror the thresholds the state machine was tuned for.
const (
	DefaultLHMURL            = "http://localhost:8085/data.json"
	DefaultThermalPollSecs   = 5
	DefaultWarningC          = 85.0
	DefaultCriticalC         = 95.0
	DefaultEmergencyC        = 100.0
	DefaultSustainedSecs     = 30
	DefaultGraceSecs         = 30
	DefaultScheduleStartHour = 0
	DefaultScheduleEndHour   = 24
)

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(getEnvFile())

	cfg := &Config{
		Port:           getEnvInt("PORT", 8091),
		Host:           getEnv("HOST", "0.0.0.0"),
		ReadTimeout:    time.Duration(getEnvInt("READ_TIMEOUT_SECONDS", 30)) * time.Second,
		WriteTimeout:   time.Duration(getEnvInt("WRITE_TIMEOUT_SECONDS", 60)) * time.Second,
		APIKey:         getEnv("API_KEY", ""),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"*"}),
		RateLimitRPS:   getEnvInt("RATE_LIMIT_RPS", 100),
		DockerEnabled:  getEnvBool("DOCKER_ENABLED", true),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		EmailEnabled:   getEnvBool("EMAIL_ENABLED", true),
		Thermal:        loadThermal(),
	}

	if cfg.JWTSecret == "" {
		// Use API key as fallback for JWT secret
		cfg.JWTSecret = cfg.APIKey
	}

	if err := cfg.Thermal.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadThermal() ThermalConfig {
	t := ThermalConfig{
		URL:                 getEnv("THERMAL_URL", DefaultLHMURL),
		Username:            getEnv("THERMAL_USERNAME", ""),
		Password:            getEnv("THERMAL_PASSWORD", ""),
		PollInterval:        time.Duration(getEnvInt("THERMAL_POLL_SECONDS", DefaultThermalPollSecs)) * time.Second,
		WarningThreshold:    getEnvFloat("THERMAL_WARNING_C", DefaultWarningC),
		CriticalThreshold:   getEnvFloat("THERMAL_CRITICAL_C", DefaultCriticalC),
		EmergencyThreshold:  getEnvFloat("THERMAL_EMERGENCY_C", DefaultEmergencyC),
		SustainedSecs:       getEnvInt("THERMAL_SUSTAINED_SECONDS", DefaultSustainedSecs),
		GraceSecs:           getEnvInt("THERMAL_GRACE_SECONDS", DefaultGraceSecs),
		AutoShutdownEnabled: getEnvBool("AUTO_SHUTDOWN_ENABLED", false),
		ScheduleStartHour:   getEnvInt("SHUTDOWN_SCHEDULE_START", DefaultScheduleStartHour),
		ScheduleEndHour:     getEnvInt("SHUTDOWN_SCHEDULE_END", DefaultScheduleEndHour),
	}

	// Clamp to sane ranges rather than failing startup on a typo
	t.WarningThreshold = clampTemp(t.WarningThreshold)
	t.CriticalThreshold = clampTemp(t.CriticalThreshold)
	t.EmergencyThreshold = clampTemp(t.EmergencyThreshold)
	if t.PollInterval < time.Second {
		t.PollInterval = time.Second
	}
	if t.SustainedSecs < 5 {
		t.SustainedSecs = 5
	}
	if t.GraceSecs < 5 {
		t.GraceSecs = 5
	}
	if t.ScheduleStartHour < 0 || t.ScheduleStartHour > 23 {
		t.ScheduleStartHour = DefaultScheduleStartHour
	}
	if t.ScheduleEndHour < 0 || t.ScheduleEndHour > 24 {
		t.ScheduleEndHour = DefaultScheduleEndHour
	}

	return t
}

// validate enforces the state machine's precondition: recovery must use
// a threshold at or below the escalation threshold (hysteresis band).
func (t ThermalConfig) validate() error {
	if t.CriticalThreshold > t.EmergencyThreshold {
		return fmt.Errorf("THERMAL_CRITICAL_C (%.1f) must be <= THERMAL_EMERGENCY_C (%.1f)",
			t.CriticalThreshold, t.EmergencyThreshold)
	}
	return nil
}

func clampTemp(v float32) float32 {
	if v < 30.0 {
		return 30.0
	}
	if v > 150.0 {
		return 150.0
	}
	return v
}

// getEnvFile returns the path to the .env file
func getEnvFile() string {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		return envFile
	}

	if _, err := os.Stat(".env"); err == nil {
		return ".env"
	}

	// Try the executable directory
	exe, err := os.Executable()
	if err == nil {
		dir := strings.TrimSuffix(exe, "/sentinel-agent")
		envPath := dir + "/.env"
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	return ".env"
}

// LoadWithDefaults loads config with defaults for testing
func LoadWithDefaults() *Config {
	return &Config{
		Port:           8091,
		Host:           "0.0.0.0",
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   60 * time.Second,
		APIKey:         "test-api-key",
		JWTSecret:      "test-jwt-secret",
		AllowedOrigins: []string{"*"},
		RateLimitRPS:   100,
		DockerEnabled:  true,
		LogLevel:       "info",
		EmailEnabled:   false,
		Thermal: ThermalConfig{
			URL:                 DefaultLHMURL,
			PollInterval:        time.Duration(DefaultThermalPollSecs) * time.Second,
			WarningThreshold:    DefaultWarningC,
			CriticalThreshold:   DefaultCriticalC,
			EmergencyThreshold:  DefaultEmergencyC,
			SustainedSecs:       DefaultSustainedSecs,
			GraceSecs:           DefaultGraceSecs,
			AutoShutdownEnabled: false,
			ScheduleStartHour:   DefaultScheduleStartHour,
			ScheduleEndHour:     DefaultScheduleEndHour,
		},
	}
}

// Addr returns the server address string
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(f)
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
