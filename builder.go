package authcore

import (
	"errors"
	"io"

	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/audit"
	"github.com/MrEthical07/authcore/clock"
	"github.com/MrEthical07/authcore/directory"
	"github.com/MrEthical07/authcore/internal/events"
	"github.com/MrEthical07/authcore/lockout"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/refresh"
	"github.com/MrEthical07/authcore/token"
)

// Builder assembles an Engine. A Builder is single use: Build may succeed
// only once.
type Builder struct {
	config Config

	directory     directory.Store
	accessControl lockout.Store
	refreshTokens refresh.Store
	history       audit.Store
	denylist      token.Denylist

	hasher    password.Hasher
	clock     clock.Clock
	entropy   io.Reader
	logger    *zap.Logger
	eventSink EventSink

	built bool
}

// New returns a Builder holding DefaultConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithDirectory sets the account and credential store. Required.
func (b *Builder) WithDirectory(s directory.Store) *Builder {
	b.directory = s
	return b
}

// WithAccessControlStore sets the lockout state store. Required.
func (b *Builder) WithAccessControlStore(s lockout.Store) *Builder {
	b.accessControl = s
	return b
}

// WithRefreshStore sets the refresh-token store. Required.
func (b *Builder) WithRefreshStore(s refresh.Store) *Builder {
	b.refreshTokens = s
	return b
}

// WithHistoryStore sets the audit history store. Required.
func (b *Builder) WithHistoryStore(s audit.Store) *Builder {
	b.history = s
	return b
}

// WithDenylist enables access-token revocation. Without it
// RevokeAccessToken returns ErrRevocationUnsupported.
func (b *Builder) WithDenylist(d token.Denylist) *Builder {
	b.denylist = d
	return b
}

// WithHasher replaces the hasher selected by Config.Password.Hasher.
func (b *Builder) WithHasher(h password.Hasher) *Builder {
	b.hasher = h
	return b
}

func (b *Builder) WithClock(c clock.Clock) *Builder {
	b.clock = c
	return b
}

// WithEntropy sets the random source for refresh tokens. It must be safe
// for concurrent use.
func (b *Builder) WithEntropy(r io.Reader) *Builder {
	b.entropy = r
	return b
}

func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

// WithEventSink receives security events when Config.Events.Enabled is set.
func (b *Builder) WithEventSink(sink EventSink) *Builder {
	b.eventSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch {
	case b.directory == nil:
		return nil, errors.New("directory store required")
	case b.accessControl == nil:
		return nil, errors.New("access control store required")
	case b.refreshTokens == nil:
		return nil, errors.New("refresh token store required")
	case b.history == nil:
		return nil, errors.New("history store required")
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := clock.Or(b.clock)

	engine := &Engine{
		config:    cfg,
		clock:     clk,
		logger:    logger.Named("authcore"),
		directory: b.directory,
		metrics:   NewMetrics(cfg.Metrics),
	}

	// -------- LOCKOUT --------
	lm, err := lockout.NewManager(b.accessControl, lockout.Config{
		Threshold: cfg.Lockout.Threshold,
		Duration:  cfg.Lockout.Duration,
		Timeout:   cfg.Store.Timeout,
	}, clk, logger)
	if err != nil {
		return nil, err
	}
	engine.lockout = lm

	// -------- ACCESS TOKENS --------
	tm, err := token.NewManager(token.Config{
		Issuer:          cfg.Token.Issuer,
		Audience:        cfg.Token.Audience,
		AccessTTL:       cfg.Token.AccessTTL,
		SigningMethod:   token.SigningMethod(cfg.Token.SigningMethod),
		PrivateKey:      cloneBytes(cfg.Token.SigningKey),
		PublicKey:       cloneBytes(cfg.Token.VerifyKey),
		Leeway:          cfg.Token.ClockSkew,
		DenylistTimeout: cfg.Store.Timeout,
	}, clk, b.denylist)
	if err != nil {
		return nil, err
	}
	engine.tokens = tm

	// -------- REFRESH TOKENS --------
	rm, err := refresh.NewManager(b.refreshTokens, refresh.Config{
		TTL:                  cfg.Refresh.TTL,
		MaxRotations:         cfg.Refresh.MaxRotations,
		Timeout:              cfg.Store.Timeout,
		OnInvariantViolation: engine.onInvariantViolation,
	}, clk, b.entropy, logger)
	if err != nil {
		return nil, err
	}
	engine.refresh = rm

	// -------- HISTORY --------
	rec, err := audit.NewRecorder(b.history, audit.Config{
		NodeID: cfg.Audit.NodeID,
		Clock:  clk,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	engine.history = rec

	// -------- PASSWORDS --------
	hasher := b.hasher
	if hasher == nil {
		if hasher, err = password.NewHasher(cfg.Password.Hasher); err != nil {
			return nil, err
		}
	}
	pe, err := password.NewEnforcer(password.EnforcerConfig{
		ValidityWindow: cfg.Password.ValidityWindow,
	}, hasher, b.directory, rec, rm, clk, logger)
	if err != nil {
		return nil, err
	}
	engine.passwords = pe

	engine.events = events.NewDispatcher(events.Config{
		Enabled:    cfg.Events.Enabled,
		BufferSize: cfg.Events.BufferSize,
		DropIfFull: cfg.Events.DropIfFull,
		Critical:   criticalEvents,
	}, b.eventSink)

	b.built = true

	return engine, nil
}
