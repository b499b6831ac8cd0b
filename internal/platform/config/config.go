package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Verification modes. AllowMock substitutes a synthetic result when the
// remote verifier is unreachable and is refused in production.
const (
	ModeStrict    = "strict"
	ModeAllowMock = "allow_mock"
)

// Claims modes for derived credentials.
const (
	ClaimsMinimal = "minimal"
	ClaimsMirror  = "mirror"
)

// Config is the full process configuration.
type Config struct {
	Env          string       `yaml:"env"`
	Addr         string       `yaml:"addr"`
	Origin       string       `yaml:"origin"`
	IssuerURL    string       `yaml:"issuerUrl"`
	Verification Verification `yaml:"verification"`
	Trust        Trust        `yaml:"trust"`
	Issuance     Issuance     `yaml:"issuance"`
	Keys         Keys         `yaml:"keys"`
	RateLimit    RateLimit    `yaml:"rateLimit"`
}

type Verification struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
	Mode     string        `yaml:"mode"`
}

type Trust struct {
	Endpoint      string        `yaml:"endpoint"`
	RootEndpoint  string        `yaml:"rootEndpoint"`
	TTL           time.Duration `yaml:"ttl"`
	FetchTimeout  time.Duration `yaml:"fetchTimeout"`
	CacheDir      string        `yaml:"cacheDir"`
	Jurisdictions []string      `yaml:"jurisdictions"`
	RequireRoots  *bool         `yaml:"requireRoots"`
}

type Issuance struct {
	SessionTTL      time.Duration `yaml:"sessionTtl"`
	CredentialTTL   time.Duration `yaml:"credentialTtl"`
	CleanupInterval time.Duration `yaml:"cleanupInterval"`
	ClaimsMode      string        `yaml:"claimsMode"`
}

// RateLimit caps requests per client IP. Limits are per Window.
type RateLimit struct {
	Disabled bool          `yaml:"disabled"`
	Window   time.Duration `yaml:"window"`
	Verify   int           `yaml:"verify"`
	Issuance int           `yaml:"issuance"`
}

type Keys struct {
	Dir          string `yaml:"dir"`
	ReaderKeyPEM string `yaml:"-"`
	IssuerKeyPEM string `yaml:"-"`
}

// RequireRootsEnabled reports whether issuer pinning to a fetched root is mandatory.
func (t Trust) RequireRootsEnabled() bool {
	return t.RequireRoots != nil && *t.RequireRoots
}

// IsProduction reports whether Env names a production deployment.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production") || strings.EqualFold(c.Env, "prod")
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Env:       "development",
		Addr:      ":8080",
		Origin:    "http://localhost:8080",
		IssuerURL: "http://localhost:8080",
		Verification: Verification{
			Endpoint: "http://localhost:9090",
			Timeout:  10 * time.Second,
			Mode:     ModeStrict,
		},
		Trust: Trust{
			TTL:           24 * time.Hour,
			FetchTimeout:  10 * time.Second,
			CacheDir:      ".cache/mdlgate",
			Jurisdictions: []string{"US", "CA", "MX"},
		},
		Issuance: Issuance{
			SessionTTL:      10 * time.Minute,
			CredentialTTL:   86400 * time.Second,
			CleanupInterval: time.Minute,
			ClaimsMode:      ClaimsMinimal,
		},
		Keys: Keys{Dir: ".keys"},
		RateLimit: RateLimit{
			Window:   time.Minute,
			Verify:   60,
			Issuance: 30,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file
// (path, or MDLGATE_CONFIG when path is empty) and environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("MDLGATE_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		var file Config
		if err := yaml.Unmarshal(data, &file); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		Merge(&cfg, file)
	}

	if err := ApplyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv is Load without a config file argument.
func FromEnv() (Config, error) {
	return Load("")
}

// Merge copies every non-zero field of src onto dst.
func Merge(dst *Config, src Config) {
	setString(&dst.Env, src.Env)
	setString(&dst.Addr, src.Addr)
	setString(&dst.Origin, src.Origin)
	setString(&dst.IssuerURL, src.IssuerURL)

	setString(&dst.Verification.Endpoint, src.Verification.Endpoint)
	setDuration(&dst.Verification.Timeout, src.Verification.Timeout)
	setString(&dst.Verification.Mode, src.Verification.Mode)

	setString(&dst.Trust.Endpoint, src.Trust.Endpoint)
	setString(&dst.Trust.RootEndpoint, src.Trust.RootEndpoint)
	setDuration(&dst.Trust.TTL, src.Trust.TTL)
	setDuration(&dst.Trust.FetchTimeout, src.Trust.FetchTimeout)
	setString(&dst.Trust.CacheDir, src.Trust.CacheDir)
	if len(src.Trust.Jurisdictions) > 0 {
		dst.Trust.Jurisdictions = normalizeJurisdictions(src.Trust.Jurisdictions)
	}
	if src.Trust.RequireRoots != nil {
		v := *src.Trust.RequireRoots
		dst.Trust.RequireRoots = &v
	}

	setDuration(&dst.Issuance.SessionTTL, src.Issuance.SessionTTL)
	setDuration(&dst.Issuance.CredentialTTL, src.Issuance.CredentialTTL)
	setDuration(&dst.Issuance.CleanupInterval, src.Issuance.CleanupInterval)
	setString(&dst.Issuance.ClaimsMode, src.Issuance.ClaimsMode)

	setString(&dst.Keys.Dir, src.Keys.Dir)

	if src.RateLimit.Disabled {
		dst.RateLimit.Disabled = true
	}
	setDuration(&dst.RateLimit.Window, src.RateLimit.Window)
	setInt(&dst.RateLimit.Verify, src.RateLimit.Verify)
	setInt(&dst.RateLimit.Issuance, src.RateLimit.Issuance)
}

// ApplyEnvOverrides layers environment variables over cfg.
func ApplyEnvOverrides(cfg *Config) error {
	setString(&cfg.Env, env("ENV"))
	setString(&cfg.Addr, env("MDLGATE_ADDR"))
	setString(&cfg.Origin, env("MDLGATE_ORIGIN"))
	setString(&cfg.IssuerURL, env("ISSUER_URL"))

	setString(&cfg.Verification.Endpoint, env("VERIFIER_ENDPOINT"))
	setString(&cfg.Verification.Mode, strings.ToLower(env("VERIFICATION_MODE")))
	setString(&cfg.Trust.Endpoint, env("TRUST_ENDPOINT"))
	setString(&cfg.Trust.RootEndpoint, env("TRUST_ROOT_ENDPOINT"))
	setString(&cfg.Trust.CacheDir, env("TRUST_CACHE_DIR"))
	setString(&cfg.Issuance.ClaimsMode, strings.ToLower(env("ISSUANCE_CLAIMS_MODE")))
	setString(&cfg.Keys.Dir, env("KEY_DIR"))
	setString(&cfg.Keys.ReaderKeyPEM, env("READER_PRIVATE_KEY_PEM"))
	setString(&cfg.Keys.IssuerKeyPEM, env("ISSUER_PRIVATE_KEY_PEM"))

	if raw := env("ACCEPTED_JURISDICTIONS"); raw != "" {
		cfg.Trust.Jurisdictions = normalizeJurisdictions(strings.Split(raw, ","))
	}
	if raw := env("TRUST_REQUIRE_ROOTS"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("TRUST_REQUIRE_ROOTS: %w", err)
		}
		cfg.Trust.RequireRoots = &v
	}

	if raw := env("RATELIMIT_DISABLED"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("RATELIMIT_DISABLED: %w", err)
		}
		cfg.RateLimit.Disabled = v
	}
	for _, n := range []struct {
		name string
		dst  *int
	}{
		{"RATELIMIT_VERIFY", &cfg.RateLimit.Verify},
		{"RATELIMIT_ISSUANCE", &cfg.RateLimit.Issuance},
	} {
		raw := env(n.name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", n.name, err)
		}
		*n.dst = v
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"VERIFIER_TIMEOUT", &cfg.Verification.Timeout},
		{"TRUST_TTL", &cfg.Trust.TTL},
		{"TRUST_FETCH_TIMEOUT", &cfg.Trust.FetchTimeout},
		{"ISSUANCE_SESSION_TTL", &cfg.Issuance.SessionTTL},
		{"CREDENTIAL_TTL", &cfg.Issuance.CredentialTTL},
		{"ISSUANCE_CLEANUP_INTERVAL", &cfg.Issuance.CleanupInterval},
		{"RATELIMIT_WINDOW", &cfg.RateLimit.Window},
	}
	for _, d := range durations {
		raw := env(d.name)
		if raw == "" {
			continue
		}
		parsed, err := parseDuration(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = parsed
	}
	return nil
}

// Validate rejects configurations the server must not start with.
func (c Config) Validate() error {
	switch c.Verification.Mode {
	case ModeStrict:
	case ModeAllowMock:
		if c.IsProduction() {
			return fmt.Errorf("verification mode %q is not allowed in production", ModeAllowMock)
		}
	default:
		return fmt.Errorf("unknown verification mode %q", c.Verification.Mode)
	}
	switch c.Issuance.ClaimsMode {
	case ClaimsMinimal, ClaimsMirror:
	default:
		return fmt.Errorf("unknown claims mode %q", c.Issuance.ClaimsMode)
	}
	if len(c.Trust.Jurisdictions) == 0 {
		return fmt.Errorf("at least one accepted jurisdiction is required")
	}
	for _, j := range c.Trust.Jurisdictions {
		if len(j) != 2 {
			return fmt.Errorf("jurisdiction %q must be a two-letter code", j)
		}
	}
	positive := []struct {
		name string
		d    time.Duration
	}{
		{"verifier timeout", c.Verification.Timeout},
		{"trust ttl", c.Trust.TTL},
		{"trust fetch timeout", c.Trust.FetchTimeout},
		{"issuance session ttl", c.Issuance.SessionTTL},
		{"credential ttl", c.Issuance.CredentialTTL},
		{"issuance cleanup interval", c.Issuance.CleanupInterval},
		{"rate limit window", c.RateLimit.Window},
	}
	for _, p := range positive {
		if p.d <= 0 {
			return fmt.Errorf("%s must be positive", p.name)
		}
	}
	if !c.RateLimit.Disabled && (c.RateLimit.Verify <= 0 || c.RateLimit.Issuance <= 0) {
		return fmt.Errorf("rate limits must be positive unless rate limiting is disabled")
	}
	return nil
}

// parseDuration accepts Go durations ("10s") or bare seconds ("86400").
func parseDuration(raw string) (time.Duration, error) {
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(raw)
}

func normalizeJurisdictions(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, j := range in {
		j = strings.ToUpper(strings.TrimSpace(j))
		if j == "" {
			continue
		}
		if _, dup := seen[j]; dup {
			continue
		}
		seen[j] = struct{}{}
		out = append(out, j)
	}
	return out
}

func env(name string) string {
	return strings.TrimSpace(os.Getenv(name))
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}
