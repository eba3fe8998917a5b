// Package config builds the single resolved configuration struct the process
// runs with. Defaults are overridden by environment variables once at startup;
// components receive the struct by value and never re-read the environment at
// call time. Secrets (directory bind password, provider auth token, DSNs)
// arrive via the environment only.
package config

import (
	"os"
	"strconv"
	"time"
)

// BucketScope selects how the session-creation leaky bucket is keyed.
type BucketScope string

const (
	// ScopeGlobal shares one bucket across all callers.
	ScopeGlobal BucketScope = "global"
	// ScopeIdentity keys the bucket by the authenticating username.
	ScopeIdentity BucketScope = "identity"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	MetricsAddr     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Registration holds the session and verification-code policy knobs.
type Registration struct {
	CodeLength          int
	VerificationTimeout time.Duration
	VerifyAttempts      int
	SessionRetention    time.Duration
	UpstreamTimeout     time.Duration
}

// SessionCreation parameterizes the leaky bucket guarding session creation.
type SessionCreation struct {
	MaxCapacity        int
	LeakRate           float64
	RegenerationPeriod time.Duration
	MinDelay           time.Duration
	InitialTokens      float64
	Scope              BucketScope
}

// Cooldown is a fixed minimum interval between permits for a key.
type Cooldown struct {
	Delay time.Duration
}

// VoiceCooldown extends Cooldown with the voice escalation policy: voice is
// only available delay-after-first-SMS past the first SMS attempt, and capped
// at MaxAttempts lifetime sends per number.
type VoiceCooldown struct {
	Delay              time.Duration
	DelayAfterFirstSMS time.Duration
	MaxAttempts        int
}

// RateLimits groups the per-action rate limit policies.
type RateLimits struct {
	SessionCreation           SessionCreation
	CheckVerificationCode     Cooldown
	SendSMSVerificationCode   Cooldown
	SendVoiceVerificationCode VoiceCooldown
}

// Directory points at the credential validation endpoint.
type Directory struct {
	BaseURL      string
	BindUser     string
	BindPassword string
	Timeout      time.Duration
}

// Delivery points at the verification-code delivery provider.
type Delivery struct {
	BaseURL    string
	AccountSID string
	AuthToken  string
	ServiceSID string
	Timeout    time.Duration
}

// Redis holds connection settings for the Redis-backed session store.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Postgres holds the DSN for the Postgres-backed session store.
type Postgres struct {
	DSN string
}

// Config is the resolved, immutable process configuration.
type Config struct {
	Server       Server
	Registration Registration
	RateLimits   RateLimits
	Directory    Directory
	Delivery     Delivery
	Redis        Redis
	Postgres     Postgres
}

// FromEnv builds the configuration from environment variables layered over
// defaults so main stays lean.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:            envString("ENROLL_ADDR", ":8080"),
			MetricsAddr:     envString("ENROLL_METRICS_ADDR", ":9090"),
			ReadTimeout:     envDuration("ENROLL_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    envDuration("ENROLL_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     envDuration("ENROLL_IDLE_TIMEOUT", time.Minute),
			ShutdownTimeout: envDuration("ENROLL_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Registration: Registration{
			CodeLength:          envInt("ENROLL_CODE_LENGTH", 6),
			VerificationTimeout: envDuration("ENROLL_VERIFICATION_TIMEOUT", 10*time.Minute),
			VerifyAttempts:      envInt("ENROLL_VERIFY_ATTEMPTS", 3),
			SessionRetention:    envDuration("ENROLL_SESSION_RETENTION", 24*time.Hour),
			UpstreamTimeout:     envDuration("ENROLL_UPSTREAM_TIMEOUT", 10*time.Second),
		},
		RateLimits: RateLimits{
			SessionCreation: SessionCreation{
				MaxCapacity:        envInt("ENROLL_RL_SESSION_MAX_CAPACITY", 100),
				LeakRate:           envFloat("ENROLL_RL_SESSION_LEAK_RATE", 0.1),
				RegenerationPeriod: envDuration("ENROLL_RL_SESSION_REGENERATION_PERIOD", 10*time.Second),
				MinDelay:           envDuration("ENROLL_RL_SESSION_MIN_DELAY", 25*time.Second),
				InitialTokens:      envFloat("ENROLL_RL_SESSION_INITIAL_TOKENS", 100),
				Scope:              BucketScope(envString("ENROLL_RL_SESSION_SCOPE", string(ScopeIdentity))),
			},
			CheckVerificationCode: Cooldown{
				Delay: envDuration("ENROLL_RL_CHECK_CODE_DELAY", 5*time.Second),
			},
			SendSMSVerificationCode: Cooldown{
				Delay: envDuration("ENROLL_RL_SEND_SMS_DELAY", 60*time.Second),
			},
			SendVoiceVerificationCode: VoiceCooldown{
				Delay:              envDuration("ENROLL_RL_SEND_VOICE_DELAY", 60*time.Second),
				DelayAfterFirstSMS: envDuration("ENROLL_RL_VOICE_DELAY_AFTER_FIRST_SMS", 2*time.Minute),
				MaxAttempts:        envInt("ENROLL_RL_VOICE_MAX_ATTEMPTS", 3),
			},
		},
		Directory: Directory{
			BaseURL:      envString("ENROLL_DIRECTORY_URL", "http://localhost:8389"),
			BindUser:     envString("ENROLL_DIRECTORY_BIND_USER", ""),
			BindPassword: envString("ENROLL_DIRECTORY_BIND_PASSWORD", ""),
			Timeout:      envDuration("ENROLL_DIRECTORY_TIMEOUT", 10*time.Second),
		},
		Delivery: Delivery{
			BaseURL:    envString("ENROLL_DELIVERY_URL", "https://verify.twilio.com"),
			AccountSID: envString("ENROLL_DELIVERY_ACCOUNT_SID", ""),
			AuthToken:  envString("ENROLL_DELIVERY_AUTH_TOKEN", ""),
			ServiceSID: envString("ENROLL_DELIVERY_SERVICE_SID", ""),
			Timeout:    envDuration("ENROLL_DELIVERY_TIMEOUT", 10*time.Second),
		},
		Redis: Redis{
			URL:          envString("ENROLL_REDIS_URL", ""),
			PoolSize:     envInt("ENROLL_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("ENROLL_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("ENROLL_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("ENROLL_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("ENROLL_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: Postgres{
			DSN: envString("ENROLL_POSTGRES_DSN", ""),
		},
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
