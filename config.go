package authcore

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/MrEthical07/authcore/lockout"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/refresh"
	"github.com/MrEthical07/authcore/token"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "AUTHCORE_"

// Config holds every tunable of the Engine. Zero-valued sections are not
// meaningful; start from DefaultConfig.
type Config struct {
	Lockout  LockoutConfig  `toml:"lockout"`
	Token    TokenConfig    `toml:"token"`
	Refresh  RefreshConfig  `toml:"refresh"`
	Password PasswordConfig `toml:"password"`
	Store    StoreConfig    `toml:"store"`
	Audit    AuditConfig    `toml:"audit"`
	Events   EventsConfig   `toml:"events"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

// LockoutConfig is the brute-force policy applied on login.
type LockoutConfig struct {
	Threshold int           `toml:"threshold"`
	Duration  time.Duration `toml:"duration"`
}

// TokenConfig configures access tokens.
type TokenConfig struct {
	Issuer        string        `toml:"issuer"`
	Audience      string        `toml:"audience"`
	AccessTTL     time.Duration `toml:"access_ttl"`
	SigningMethod string        `toml:"signing_method"`
	// ClockSkew tolerates verifier clock drift, at most token.MaxLeeway.
	ClockSkew time.Duration `toml:"clock_skew"`
	// SigningKeyFile and VerifyKeyFile are read by LoadConfig into
	// SigningKey and VerifyKey.
	SigningKeyFile string `toml:"signing_key_file"`
	VerifyKeyFile  string `toml:"verify_key_file"`
	SigningKey     []byte `toml:"-"`
	VerifyKey      []byte `toml:"-"`
}

// RefreshConfig configures refresh tokens.
type RefreshConfig struct {
	TTL          time.Duration `toml:"ttl"`
	MaxRotations int           `toml:"max_rotations"`
}

// PasswordConfig configures hashing and the password age policy.
type PasswordConfig struct {
	ValidityWindow time.Duration         `toml:"validity_window"`
	Hasher         password.HasherConfig `toml:"hasher"`
}

// StoreConfig bounds every store call made by the Engine.
type StoreConfig struct {
	Timeout time.Duration `toml:"timeout"`
}

// AuditConfig configures the history recorder.
type AuditConfig struct {
	// NodeID distinguishes processes sharing one history store (0-1023).
	NodeID int64 `toml:"node_id"`
}

// EventsConfig controls the asynchronous security-event stream.
type EventsConfig struct {
	Enabled    bool `toml:"enabled"`
	BufferSize int  `toml:"buffer_size"`
	DropIfFull bool `toml:"drop_if_full"`
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool `toml:"enabled"`
	EnableLatencyHistograms bool `toml:"enable_latency_histograms"`
}

// DefaultConfig returns the documented defaults: lock after 5 failures for
// 15 minutes, 2 hour access tokens, 7 day refresh tokens rotated at most 10
// times, and a 90 day password validity window. SigningKey is left empty.
func DefaultConfig() Config {
	return Config{
		Lockout: LockoutConfig{
			Threshold: lockout.DefaultThreshold,
			Duration:  lockout.DefaultDuration,
		},
		Token: TokenConfig{
			Issuer:        token.DefaultIssuer,
			AccessTTL:     token.DefaultAccessTTL,
			SigningMethod: string(token.MethodHS256),
		},
		Refresh: RefreshConfig{
			TTL:          refresh.DefaultTTL,
			MaxRotations: refresh.DefaultMaxRotations,
		},
		Password: PasswordConfig{
			ValidityWindow: password.DefaultValidityWindow,
			Hasher:         password.DefaultHasherConfig(),
		},
		Store: StoreConfig{
			Timeout: 3 * time.Second,
		},
		Events: EventsConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.SigningKey = cloneBytes(cfg.Token.SigningKey)
	out.Token.VerifyKey = cloneBytes(cfg.Token.VerifyKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Lockout.Threshold <= 0 {
		return errors.New("Lockout Threshold must be > 0")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}

	if c.Token.AccessTTL <= 0 {
		return errors.New("Token AccessTTL must be > 0")
	}
	switch token.SigningMethod(c.Token.SigningMethod) {
	case token.MethodHS256, token.MethodEd25519:
	default:
		return errors.New("unsupported Token SigningMethod")
	}
	if len(c.Token.SigningKey) == 0 {
		return errors.New("Token SigningKey is required")
	}
	if c.Token.ClockSkew < 0 || c.Token.ClockSkew > token.MaxLeeway {
		return fmt.Errorf("Token ClockSkew must be within [0, %s]", token.MaxLeeway)
	}

	if c.Refresh.TTL <= 0 {
		return errors.New("Refresh TTL must be > 0")
	}
	if c.Refresh.MaxRotations <= 0 {
		return errors.New("Refresh MaxRotations must be > 0")
	}

	if c.Password.ValidityWindow <= 0 {
		return errors.New("Password ValidityWindow must be > 0")
	}

	if c.Store.Timeout < 0 {
		return errors.New("Store Timeout must be >= 0")
	}
	if c.Audit.NodeID < 0 || c.Audit.NodeID > 1023 {
		return errors.New("Audit NodeID must be within [0, 1023]")
	}
	if c.Events.Enabled && c.Events.BufferSize <= 0 {
		return errors.New("Events BufferSize must be > 0 when enabled")
	}
	return nil
}

// LoadConfig decodes the TOML file at path over DefaultConfig, applies
// AUTHCORE_* environment overrides and reads key files. An empty path skips
// the file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("authcore: decode %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return Config{}, fmt.Errorf("authcore: unknown config keys in %s: %v", path, undecoded)
		}
	}
	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.loadKeys(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadKeys() error {
	if c.Token.SigningKeyFile != "" {
		key, err := os.ReadFile(c.Token.SigningKeyFile)
		if err != nil {
			return fmt.Errorf("authcore: read signing key: %w", err)
		}
		c.Token.SigningKey = key
	}
	if c.Token.VerifyKeyFile != "" {
		key, err := os.ReadFile(c.Token.VerifyKeyFile)
		if err != nil {
			return fmt.Errorf("authcore: read verify key: %w", err)
		}
		c.Token.VerifyKey = key
	}
	return nil
}

// ApplyEnv overlays AUTHCORE_* variables found through lookup onto cfg.
// AUTHCORE_TOKEN_SIGNING_KEY carries a raw key and is meant for development.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	setters := map[string]func(string) error{
		"LOCKOUT_THRESHOLD":        intSetter(&cfg.Lockout.Threshold),
		"LOCKOUT_DURATION":         durationSetter(&cfg.Lockout.Duration),
		"TOKEN_ISSUER":             stringSetter(&cfg.Token.Issuer),
		"TOKEN_AUDIENCE":           stringSetter(&cfg.Token.Audience),
		"TOKEN_ACCESS_TTL":         durationSetter(&cfg.Token.AccessTTL),
		"TOKEN_SIGNING_METHOD":     stringSetter(&cfg.Token.SigningMethod),
		"TOKEN_CLOCK_SKEW":         durationSetter(&cfg.Token.ClockSkew),
		"TOKEN_SIGNING_KEY_FILE":   stringSetter(&cfg.Token.SigningKeyFile),
		"TOKEN_VERIFY_KEY_FILE":    stringSetter(&cfg.Token.VerifyKeyFile),
		"TOKEN_SIGNING_KEY":        bytesSetter(&cfg.Token.SigningKey),
		"REFRESH_TTL":              durationSetter(&cfg.Refresh.TTL),
		"REFRESH_MAX_ROTATIONS":    intSetter(&cfg.Refresh.MaxRotations),
		"PASSWORD_VALIDITY_WINDOW": durationSetter(&cfg.Password.ValidityWindow),
		"PASSWORD_ALGORITHM":       algorithmSetter(&cfg.Password.Hasher.Algorithm),
		"PASSWORD_BCRYPT_COST":     intSetter(&cfg.Password.Hasher.BcryptCost),
		"STORE_TIMEOUT":            durationSetter(&cfg.Store.Timeout),
		"AUDIT_NODE_ID":            int64Setter(&cfg.Audit.NodeID),
		"EVENTS_ENABLED":           boolSetter(&cfg.Events.Enabled),
		"EVENTS_BUFFER_SIZE":       intSetter(&cfg.Events.BufferSize),
		"METRICS_ENABLED":          boolSetter(&cfg.Metrics.Enabled),
	}
	for name, set := range setters {
		v, ok := lookup(EnvPrefix + name)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		if err := set(strings.TrimSpace(v)); err != nil {
			return fmt.Errorf("authcore: %s%s: %w", EnvPrefix, name, err)
		}
	}
	return nil
}

func stringSetter(dst *string) func(string) error {
	return func(v string) error { *dst = v; return nil }
}

func bytesSetter(dst *[]byte) func(string) error {
	return func(v string) error { *dst = []byte(v); return nil }
}

func algorithmSetter(dst *password.Algorithm) func(string) error {
	return func(v string) error { *dst = password.Algorithm(v); return nil }
}

func intSetter(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func int64Setter(dst *int64) func(string) error {
	return func(v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func boolSetter(dst *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}
}

func durationSetter(dst *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
}
