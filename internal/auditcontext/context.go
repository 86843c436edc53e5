package auditcontext

import (
	"context"
	"strings"
	"unicode/utf8"
)

type requestIDKey struct{}
type ipAddressKey struct{}
type userAgentKey struct{}
type actorKey struct{}

type actor struct {
	actorType string
	actorID   string
}

// Column widths of audit_logs.ip and audit_logs.ua, in characters.
const (
	MaxIPAddressLength = 64
	MaxUserAgentLength = 512
)

const (
	ActorTypeAdmin   = "admin"
	ActorTypeWebhook = "webhook"
	ActorTypeSystem  = "system"
)

// WithRequestID stores the request correlation id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, strings.TrimSpace(requestID))
}

// RequestIDFromContext returns the request correlation id, if any.
func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey{})
}

// WithIPAddress stores the caller address recorded on audit entries.
func WithIPAddress(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ipAddressKey{}, clamp(ip, MaxIPAddressLength))
}

func IPAddressFromContext(ctx context.Context) string {
	return stringValue(ctx, ipAddressKey{})
}

// WithUserAgent stores the caller's user agent, cut to MaxUserAgentLength
// characters of valid UTF-8.
func WithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, userAgentKey{}, clamp(ua, MaxUserAgentLength))
}

func UserAgentFromContext(ctx context.Context) string {
	return stringValue(ctx, userAgentKey{})
}

// WithActor records who is acting on the request, e.g. the admin username.
func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor{
		actorType: strings.TrimSpace(actorType),
		actorID:   strings.TrimSpace(actorID),
	})
}

func ActorFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	value, ok := ctx.Value(actorKey{}).(actor)
	if !ok {
		return "", ""
	}
	return value.actorType, value.actorID
}

func stringValue(ctx context.Context, key any) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(key).(string)
	return value
}

func clamp(value string, max int) string {
	value = strings.TrimSpace(strings.ToValidUTF8(value, ""))
	if utf8.RuneCountInString(value) <= max {
		return value
	}
	return strings.TrimSpace(string([]rune(value)[:max]))
}
