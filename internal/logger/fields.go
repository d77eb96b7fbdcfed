package logger

import "log/slog"

// Field keys shared across the session, registry, transport and
// scheduler packages, so log lines stay greppable regardless of which
// package emitted them.
const (
	KeySSID       = "ssid"
	KeyConnType   = "conn_type"
	KeyTransport  = "transport"
	KeyJob        = "job"
	KeyAttempt    = "attempt"
	KeyMaxRetries = "max_retries"
	KeyBackoff    = "backoff"
	KeyDuration   = "duration_ms"
	KeyError      = "error"
	KeyURI        = "uri"
	KeyBinding    = "binding"
	KeySecurity   = "security"
	KeyBootstrap  = "bootstrap"
	KeyReason     = "reason"
)

func SSID(ssid uint16) slog.Attr            { return slog.Uint64(KeySSID, uint64(ssid)) }
func ConnType(connType string) slog.Attr    { return slog.String(KeyConnType, connType) }
func Transport(transport string) slog.Attr  { return slog.String(KeyTransport, transport) }
func Job(job string) slog.Attr              { return slog.String(KeyJob, job) }
func Attempt(n int) slog.Attr               { return slog.Int(KeyAttempt, n) }
func MaxRetries(n int) slog.Attr            { return slog.Int(KeyMaxRetries, n) }
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
func URI(uri string) slog.Attr         { return slog.String(KeyURI, uri) }
func Binding(binding string) slog.Attr { return slog.String(KeyBinding, binding) }
func Security(mode string) slog.Attr   { return slog.String(KeySecurity, mode) }
func Bootstrap(b bool) slog.Attr       { return slog.Bool(KeyBootstrap, b) }
func Reason(reason string) slog.Attr   { return slog.String(KeyReason, reason) }
