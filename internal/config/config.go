// Package config resolves the gateway's configuration from environment
// variables, which take precedence over the package's own defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	DefaultPort      = 8443
	DefaultAddress   = "0.0.0.0"
	DefaultRealm     = "SECRET AREA"
	DefaultAuthTheme = "anonymous"
	DefaultVarDir    = ".wsrelay/var"
	DefaultWaitTime  = 1 * time.Second

	DefaultAdmissionRPS   = 10.0
	DefaultAdmissionBurst = 20
	DefaultMaxInFlight    = 1000
)

// AdmissionConfig configures the connection-rate gate applied before
// the opening handshake, mirroring gateway.AdmissionConfig's shape so
// Load can populate it without the config package importing gateway.
type AdmissionConfig struct {
	Enabled              bool
	MaxRequestsPerSecond float64
	BurstSize            int
	MaxInFlight          int
}

// Config is the gateway Server's resolved configuration.
type Config struct {
	Address      string
	Port         int
	Secure       bool
	ReuseAddress bool

	Realm      string
	AuthScheme string // "anonymous", "basic", or "digest"

	KeepClean             bool
	WaitTime              time.Duration
	AllowForwardedRequest bool
	CredentialStorePath   string
	VarDir                string

	Tailscale TailscaleConfig
	Admission AdmissionConfig
}

// Load resolves configuration from environment variables and the
// package's defaults and validates the result, returning Validate's
// error instead of a Config when it is not consistent.
func Load() (*Config, error) {
	varDir := envStringDefault("WSRELAY_VAR_DIR", DefaultVarDir)

	cfg := &Config{
		Address:      envStringDefault("WSRELAY_ADDRESS", DefaultAddress),
		Port:         envInt("WSRELAY_PORT", DefaultPort),
		Secure:       envBool("WSRELAY_SECURE"),
		ReuseAddress: envBoolDefault("WSRELAY_REUSE_ADDRESS", true),

		Realm:      envStringDefault("WSRELAY_REALM", DefaultRealm),
		AuthScheme: envStringDefault("WSRELAY_AUTH_SCHEME", DefaultAuthTheme),

		KeepClean:             envBoolDefault("WSRELAY_KEEP_CLEAN", true),
		WaitTime:              envDuration("WSRELAY_WAIT_TIME", DefaultWaitTime),
		AllowForwardedRequest: envBool("WSRELAY_ALLOW_FORWARDED_REQUEST"),
		CredentialStorePath:   envStringDefault("WSRELAY_CREDENTIAL_STORE", filepath.Join(varDir, "credentials.db")),
		VarDir:                varDir,

		Admission: AdmissionConfig{
			Enabled:              envBoolDefault("WSRELAY_ADMISSION_ENABLED", true),
			MaxRequestsPerSecond: envFloat("WSRELAY_ADMISSION_RPS", DefaultAdmissionRPS),
			BurstSize:            envInt("WSRELAY_ADMISSION_BURST", DefaultAdmissionBurst),
			MaxInFlight:          envInt("WSRELAY_ADMISSION_MAX_IN_FLIGHT", DefaultMaxInFlight),
		},
	}

	cfg.Tailscale = LoadTailscaleConfig(varDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports whether the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config: port must be between 1 and 65535, got %d", c.Port)
	}
	if (c.Port == 80 && c.Secure) || (c.Port == 443 && !c.Secure) {
		return fmt.Errorf("config: port %d is incompatible with secure=%v", c.Port, c.Secure)
	}

	switch c.AuthScheme {
	case "anonymous", "basic", "digest":
	default:
		return fmt.Errorf("config: auth scheme must be one of anonymous, basic, digest, got %q", c.AuthScheme)
	}

	if c.AuthScheme != "anonymous" && c.Realm == "" {
		return fmt.Errorf("config: realm must not be empty when auth scheme is %q", c.AuthScheme)
	}

	if c.WaitTime <= 0 {
		return fmt.Errorf("config: wait time must be positive, got %s", c.WaitTime)
	}

	if c.Admission.Enabled {
		if c.Admission.MaxRequestsPerSecond <= 0 {
			return fmt.Errorf("config: admission max requests per second must be positive")
		}
		if c.Admission.BurstSize <= 0 {
			return fmt.Errorf("config: admission burst size must be positive")
		}
		if c.Admission.MaxInFlight <= 0 {
			return fmt.Errorf("config: admission max in-flight must be positive")
		}
	}

	return c.Tailscale.Validate()
}

func envStringDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBoolDefault(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v == "true" || v == "1" || v == "yes"
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
