package internaldefs

import (
	goSession "github.com/MrEthical07/goSession"
)

// CounterDef names one Engine counter for exporters.
type CounterDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// HistogramDef names one Engine histogram for exporters.
type HistogramDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in output order.
var CounterDefs = []CounterDef{
	{ID: goSession.MetricLoginSuccess, Name: "gpsession_login_success_total", Help: "Successful logins."},
	{ID: goSession.MetricLoginFailure, Name: "gpsession_login_failure_total", Help: "Failed logins."},
	{ID: goSession.MetricLogout, Name: "gpsession_logout_total", Help: "Explicit logouts."},
	{ID: goSession.MetricSessionInvalidated, Name: "gpsession_session_invalidated_total", Help: "Sessions ended because the backend rejected the token."},
	{ID: goSession.MetricSessionRestored, Name: "gpsession_session_restored_total", Help: "Sessions restored from the keystore."},
	{ID: goSession.MetricRestoreFailed, Name: "gpsession_restore_failed_total", Help: "Stored tokens that could not be restored."},
	{ID: goSession.MetricUserRefreshSuccess, Name: "gpsession_user_refresh_success_total", Help: "Successful current-user refreshes."},
	{ID: goSession.MetricUserRefreshFailure, Name: "gpsession_user_refresh_failure_total", Help: "Failed current-user refreshes."},
	{ID: goSession.MetricCourseCacheHit, Name: "gpsession_course_cache_hit_total", Help: "Course cache hits."},
	{ID: goSession.MetricCourseCacheMiss, Name: "gpsession_course_cache_miss_total", Help: "Course cache misses."},
	{ID: goSession.MetricCourseFetchFailure, Name: "gpsession_course_fetch_failure_total", Help: "Failed course fetches."},
	{ID: goSession.MetricPermissionGranted, Name: "gpsession_permission_granted_total", Help: "Permission checks that were granted."},
	{ID: goSession.MetricPermissionDenied, Name: "gpsession_permission_denied_total", Help: "Permission checks that were denied."},
	{ID: goSession.MetricFetchSuperseded, Name: "gpsession_fetch_superseded_total", Help: "Fetches cancelled by a newer request."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goSession.MetricFetchLatency, Name: "gpsession_fetch_latency_seconds", Help: "Backend fetch latency."},
}

// AuditDroppedName is the counter for audit events dropped under backpressure.
const (
	AuditDroppedName = "gpsession_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."
)

// UpperBounds are the finite bucket bounds in seconds. The eighth bucket is
// +Inf.
var UpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters that
// publish buckets as separate instruments.
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

// NormalizeBuckets copies raw into a fixed eight-bucket array, padding with
// zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
