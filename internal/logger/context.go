package logger

import (
	"context"
	"log/slog"

	"github.com/dhuga/lwm2mcore/pkg/lwm2m/model"
)

type ctxKey struct{}

// SessionContext carries the fields every log call inside the session
// package should attach: which server the call concerns, over which
// transport, and which scheduler job (if any) triggered it.
type SessionContext struct {
	SSID      model.SSID
	ConnType  model.ConnType
	Transport string
	Job       string
}

// WithSSID attaches ssid to ctx, replacing any SessionContext already
// present but preserving its other fields.
func WithSSID(ctx context.Context, ssid model.SSID) context.Context {
	sc := FromContext(ctx)
	sc.SSID = ssid
	return context.WithValue(ctx, ctxKey{}, sc)
}

// WithConnType attaches connType to ctx.
func WithConnType(ctx context.Context, connType model.ConnType) context.Context {
	sc := FromContext(ctx)
	sc.ConnType = connType
	return context.WithValue(ctx, ctxKey{}, sc)
}

// WithTransport attaches a transport label (e.g. "udp", "dtls") to ctx.
func WithTransport(ctx context.Context, transport string) context.Context {
	sc := FromContext(ctx)
	sc.Transport = transport
	return context.WithValue(ctx, ctxKey{}, sc)
}

// WithJob attaches a scheduler job name to ctx.
func WithJob(ctx context.Context, job string) context.Context {
	sc := FromContext(ctx)
	sc.Job = job
	return context.WithValue(ctx, ctxKey{}, sc)
}

// FromContext returns the SessionContext carried on ctx, or the zero
// value if none was ever attached.
func FromContext(ctx context.Context) SessionContext {
	if sc, ok := ctx.Value(ctxKey{}).(SessionContext); ok {
		return sc
	}
	return SessionContext{}
}

// attrs renders the non-zero fields of sc as slog attributes, in a
// fixed order so log lines are easy to scan.
func (sc SessionContext) attrs() []slog.Attr {
	var attrs []slog.Attr
	if sc.SSID != 0 {
		attrs = append(attrs, slog.Uint64(KeySSID, uint64(sc.SSID)))
	}
	if sc.ConnType != model.ConnUnset {
		attrs = append(attrs, slog.String(KeyConnType, sc.ConnType.String()))
	}
	if sc.Transport != "" {
		attrs = append(attrs, slog.String(KeyTransport, sc.Transport))
	}
	if sc.Job != "" {
		attrs = append(attrs, slog.String(KeyJob, sc.Job))
	}
	return attrs
}

// prependContext flattens the SessionContext on ctx into the head of an
// slog args slice, ahead of the caller's own key/value pairs.
func prependContext(ctx context.Context, args []any) []any {
	attrs := FromContext(ctx).attrs()
	if len(attrs) == 0 {
		return args
	}
	out := make([]any, 0, len(attrs)*2+len(args))
	for _, a := range attrs {
		out = append(out, a.Key, a.Value.Any())
	}
	return append(out, args...)
}
