package internaldefs

import (
	"github.com/MrEthical07/authsvc"
)

// CounterDef names one engine counter for export.
// Operation and Outcome split the counter into attributes for exporters
// that group by label instead of by name.
type CounterDef struct {
	ID        authsvc.MetricID
	Name      string
	Help      string
	Operation string
	Outcome   string
}

// HistogramDef names one engine histogram for export.
type HistogramDef struct {
	ID   authsvc.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: authsvc.MetricRegisterSuccess, Name: "authsvc_register_success_total", Help: "Successful registrations.", Operation: "register", Outcome: "success"},
	{ID: authsvc.MetricRegisterFailure, Name: "authsvc_register_failure_total", Help: "Failed registrations.", Operation: "register", Outcome: "failure"},
	{ID: authsvc.MetricRegisterConflict, Name: "authsvc_register_conflict_total", Help: "Registrations rejected because the email or username is taken.", Operation: "register", Outcome: "conflict"},
	{ID: authsvc.MetricOTPVerifySuccess, Name: "authsvc_otp_verify_success_total", Help: "Successful OTP verifications.", Operation: "otp_verify", Outcome: "success"},
	{ID: authsvc.MetricOTPVerifyFailure, Name: "authsvc_otp_verify_failure_total", Help: "Failed OTP verifications.", Operation: "otp_verify", Outcome: "failure"},
	{ID: authsvc.MetricOTPResend, Name: "authsvc_otp_resend_total", Help: "OTP resend requests that issued a new code.", Operation: "otp_resend", Outcome: "issued"},
	{ID: authsvc.MetricNotificationFailure, Name: "authsvc_notification_failure_total", Help: "OTP emails that could not be sent.", Operation: "notification", Outcome: "failure"},
	{ID: authsvc.MetricLoginSuccess, Name: "authsvc_login_success_total", Help: "Successful logins.", Operation: "login", Outcome: "success"},
	{ID: authsvc.MetricLoginFailure, Name: "authsvc_login_failure_total", Help: "Failed logins.", Operation: "login", Outcome: "failure"},
	{ID: authsvc.MetricLoginUnverified, Name: "authsvc_login_unverified_total", Help: "Logins rejected for unverified accounts.", Operation: "login", Outcome: "unverified"},
	{ID: authsvc.MetricRefreshSuccess, Name: "authsvc_refresh_success_total", Help: "Successful refresh rotations.", Operation: "refresh", Outcome: "success"},
	{ID: authsvc.MetricRefreshFailure, Name: "authsvc_refresh_failure_total", Help: "Failed refresh attempts.", Operation: "refresh", Outcome: "failure"},
	{ID: authsvc.MetricRefreshReuseDetected, Name: "authsvc_refresh_reuse_detected_total", Help: "Presentations of already rotated refresh tokens.", Operation: "refresh", Outcome: "reuse_detected"},
	{ID: authsvc.MetricRefreshRevokedOnReuse, Name: "authsvc_refresh_revoked_on_reuse_total", Help: "Subjects whose refresh tokens were revoked after reuse.", Operation: "refresh", Outcome: "revoked_on_reuse"},
	{ID: authsvc.MetricRateLimitHit, Name: "authsvc_rate_limit_hit_total", Help: "Requests rejected by admission control.", Operation: "admission", Outcome: "rejected"},
	{ID: authsvc.MetricLogout, Name: "authsvc_logout_total", Help: "Logout operations.", Operation: "logout", Outcome: "success"},
	{ID: authsvc.MetricValidateSuccess, Name: "authsvc_validate_success_total", Help: "Access tokens accepted.", Operation: "validate", Outcome: "success"},
	{ID: authsvc.MetricValidateFailure, Name: "authsvc_validate_failure_total", Help: "Access tokens rejected.", Operation: "validate", Outcome: "failure"},
	{ID: authsvc.MetricAuditDropped, Name: "authsvc_audit_dropped_total", Help: "Audit events that never reached the sink.", Operation: "audit", Outcome: "dropped"},
	{ID: authsvc.MetricBackendTimeout, Name: "authsvc_backend_timeout_total", Help: "Store or sender calls that exceeded their deadline.", Operation: "backend", Outcome: "timeout"},
}

var HistogramDefs = []HistogramDef{
	{ID: authsvc.MetricValidateLatency, Name: "authsvc_validate_latency_seconds", Help: "ValidateToken latency."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The last
// engine bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
