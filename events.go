package authcore

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/internal/events"
)

type (
	SecurityEvent  = events.Event
	EventSink      = events.Sink
	NoOpSink       = events.NoOpSink
	ChannelSink    = events.ChannelSink
	JSONWriterSink = events.JSONWriterSink
	LoggerSink     = events.LoggerSink
)

// Security event types.
const (
	EventLoginSuccess         = "login_success"
	EventLoginFailure         = "login_failure"
	EventLoginLocked          = "login_locked"
	EventLoginPasswordExpired = "login_password_expired"
	EventLoginDisabled        = "login_disabled"
	EventAccountLocked        = "account_locked"
	EventAccountUnlocked      = "account_unlocked"
	EventRefreshSuccess       = "refresh_success"
	EventRefreshFailure       = "refresh_failure"
	EventLogout               = "logout"
	EventLogoutAll            = "logout_all"
	EventAccessTokenRevoked   = "access_token_revoked"
	EventPasswordChanged      = "password_changed"
	EventPasswordChangeFailed = "password_change_failed"
	EventAccountCreated       = "account_created"
	EventAccountUpdated       = "account_updated"
	EventAccountDeactivated   = "account_deactivated"
	EventInvariantViolation   = "invariant_violation"

	// EventDropped summarises events discarded under backpressure. Its
	// metadata maps each discarded type to a count.
	EventDropped = events.TypeDropped
)

// criticalEvents are queued even when Config.Events.DropIfFull is set.
var criticalEvents = []string{
	EventAccountLocked,
	EventAccountDeactivated,
	EventPasswordChanged,
	EventInvariantViolation,
}

func NewChannelSink(buffer int) *ChannelSink        { return events.NewChannelSink(buffer) }
func NewJSONWriterSink(w io.Writer) *JSONWriterSink { return events.NewJSONWriterSink(w) }
func NewLoggerSink(logger *zap.Logger) *LoggerSink  { return events.NewLoggerSink(logger) }

func (e *Engine) emit(ctx context.Context, eventType, accountID string, success bool, err error, metadata map[string]string) {
	if e.events == nil {
		return
	}
	event := SecurityEvent{
		Timestamp: e.clock.Now().UTC(),
		Type:      eventType,
		AccountID: accountID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if err != nil {
		event.Error = err.Error()
	}
	e.events.Emit(ctx, event)
}
