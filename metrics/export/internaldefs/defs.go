package internaldefs

import (
	"strconv"
	"strings"

	"github.com/MrEthical07/authcore"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for export.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a fixed order.
var CounterDefs = []CounterDef{
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Successful logins."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Logins rejected for an unknown identifier or a wrong secret."},
	{ID: authcore.MetricLoginLocked, Name: "authcore_login_locked_total", Help: "Logins refused because the account was locked."},
	{ID: authcore.MetricLoginPasswordExpired, Name: "authcore_login_password_expired_total", Help: "Logins refused because the password expired."},
	{ID: authcore.MetricLoginDisabled, Name: "authcore_login_disabled_total", Help: "Logins refused because the account is inactive."},
	{ID: authcore.MetricAccountLocked, Name: "authcore_account_locked_total", Help: "Accounts locked by the failure threshold."},
	{ID: authcore.MetricRefreshSuccess, Name: "authcore_refresh_success_total", Help: "Successful refresh-token rotations."},
	{ID: authcore.MetricRefreshFailure, Name: "authcore_refresh_failure_total", Help: "Rejected refresh tokens."},
	{ID: authcore.MetricLogout, Name: "authcore_logout_total", Help: "Single-session logouts."},
	{ID: authcore.MetricLogoutAll, Name: "authcore_logout_all_total", Help: "Logout-all operations."},
	{ID: authcore.MetricAccessTokenRevoked, Name: "authcore_access_token_revoked_total", Help: "Access tokens added to the denylist."},
	{ID: authcore.MetricAccessTokenRejected, Name: "authcore_access_token_rejected_total", Help: "Access tokens that failed verification."},
	{ID: authcore.MetricPasswordChangeSuccess, Name: "authcore_password_change_success_total", Help: "Successful password changes."},
	{ID: authcore.MetricPasswordChangeInvalidOld, Name: "authcore_password_change_invalid_old_total", Help: "Password changes with a wrong current password."},
	{ID: authcore.MetricPasswordChangeReuseRejected, Name: "authcore_password_change_reuse_rejected_total", Help: "Password changes rejected for reuse."},
	{ID: authcore.MetricAccountCreated, Name: "authcore_account_created_total", Help: "Registered accounts."},
	{ID: authcore.MetricAccountCreationDuplicate, Name: "authcore_account_creation_duplicate_total", Help: "Registrations rejected as duplicate."},
	{ID: authcore.MetricAccountUpdated, Name: "authcore_account_updated_total", Help: "Account updates that changed data."},
	{ID: authcore.MetricAccountDeactivated, Name: "authcore_account_deactivated_total", Help: "Account deactivations."},
	{ID: authcore.MetricAccountUnlocked, Name: "authcore_account_unlocked_total", Help: "Administrative unlocks."},
	{ID: authcore.MetricInternalError, Name: "authcore_internal_error_total", Help: "Operations failed by an infrastructure error."},
	{ID: authcore.MetricInvariantViolation, Name: "authcore_invariant_violation_total", Help: "Refresh records found in an impossible state."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricVerifyLatency, Name: "authcore_verify_latency_seconds", Help: "Access-token verification latency."},
}

// EventsDroppedName is the counter of security events lost to backpressure.
const EventsDroppedName = "authcore_events_dropped_total"

// BucketCount is the number of engine histogram buckets, +Inf included.
const BucketCount = 8

// BoundSeconds returns the finite bucket bounds in seconds. The final +Inf
// bucket is implied.
func BoundSeconds() []float64 {
	bounds := authcore.LatencyBucketBounds()
	out := make([]float64, len(bounds))
	for i, b := range bounds {
		out[i] = b.Seconds()
	}
	return out
}

// BoundSuffixes renders every bucket bound, +Inf included, as a metric-name
// safe suffix: 0.00005 becomes "0_00005".
func BoundSuffixes() []string {
	bounds := BoundSeconds()
	out := make([]string, 0, len(bounds)+1)
	for _, b := range bounds {
		out = append(out, strings.ReplaceAll(strconv.FormatFloat(b, 'f', -1, 64), ".", "_"))
	}
	return append(out, "inf")
}

// NormalizeBuckets pads or truncates raw to BucketCount.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := range raw {
		running += raw[i]
		out[i] = running
	}
	return out
}
