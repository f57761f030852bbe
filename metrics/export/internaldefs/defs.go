package internaldefs

import "github.com/MrEthical07/otpgate"

// CounterDef names one engine counter.
type CounterDef struct {
	ID   otpgate.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram.
type HistogramDef struct {
	ID   otpgate.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: otpgate.MetricRegisterStaged, Name: "otpgate_register_staged_total", Help: "Registrations staged pending OTP verification."},
	{ID: otpgate.MetricRegisterConflict, Name: "otpgate_register_conflict_total", Help: "Registrations rejected because the email is taken."},
	{ID: otpgate.MetricOTPIssued, Name: "otpgate_otp_issued_total", Help: "OTP challenges stored."},
	{ID: otpgate.MetricOTPResent, Name: "otpgate_otp_resent_total", Help: "OTP challenges reissued on request."},
	{ID: otpgate.MetricOTPDeliveryFailed, Name: "otpgate_otp_delivery_failed_total", Help: "OTP mails the sender failed to deliver."},
	{ID: otpgate.MetricOTPVerifySuccess, Name: "otpgate_otp_verify_success_total", Help: "Successful OTP verifications."},
	{ID: otpgate.MetricOTPVerifyInvalid, Name: "otpgate_otp_verify_invalid_total", Help: "OTP verifications with a wrong or malformed code."},
	{ID: otpgate.MetricOTPVerifyExpired, Name: "otpgate_otp_verify_expired_total", Help: "OTP verifications after the code expired."},
	{ID: otpgate.MetricOTPVerifyUnknown, Name: "otpgate_otp_verify_unknown_total", Help: "OTP verifications with no active challenge."},
	{ID: otpgate.MetricOTPAttemptsExceeded, Name: "otpgate_otp_attempts_exceeded_total", Help: "Challenges locked after too many wrong codes."},
	{ID: otpgate.MetricPromoteSuccess, Name: "otpgate_promote_success_total", Help: "Staged registrants promoted to users."},
	{ID: otpgate.MetricPromoteConflict, Name: "otpgate_promote_conflict_total", Help: "Promotions that lost an email uniqueness race."},
	{ID: otpgate.MetricLoginPasswordSuccess, Name: "otpgate_login_password_success_total", Help: "Logins that passed the password step."},
	{ID: otpgate.MetricLoginPasswordFailure, Name: "otpgate_login_password_failure_total", Help: "Logins rejected at the password step."},
	{ID: otpgate.MetricSessionIssued, Name: "otpgate_session_issued_total", Help: "Session tokens issued."},
	{ID: otpgate.MetricSessionValidateSuccess, Name: "otpgate_session_validate_success_total", Help: "Session tokens accepted."},
	{ID: otpgate.MetricSessionValidateFailure, Name: "otpgate_session_validate_failure_total", Help: "Session tokens rejected."},
}

var HistogramDefs = []HistogramDef{
	{ID: otpgate.MetricVerifyLatency, Name: "otpgate_otp_verify_latency_seconds", Help: "OTP verification latency."},
	{ID: otpgate.MetricValidateLatency, Name: "otpgate_session_validate_latency_seconds", Help: "Session validation latency."},
}

// AuditDroppedName is exported alongside the engine counters.
const (
	AuditDroppedName = "otpgate_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."
)

// HistogramBounds are the upper bounds, in seconds, of the engine's eight
// fixed buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix spells each bound in a form usable in a metric name.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to the eight engine buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i, v := range raw {
		running += v
		out[i] = running
	}
	return out
}
