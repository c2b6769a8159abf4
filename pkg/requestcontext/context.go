// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware sets the values; services read them without importing net/http.
//
//	principal := requestcontext.Principal(ctx)
//	requestID := requestcontext.RequestID(ctx)
//	now := requestcontext.Now(ctx)
//
// Tests inject values directly:
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithPrincipal(ctx, requestcontext.NewPrincipal("ops@platform", "ManageCompliance"))
package requestcontext

import (
	"context"
	"time"
)

type (
	principalKey   struct{}
	clientIPKey    struct{}
	userAgentKey   struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

var (
	ContextKeyPrincipal   = principalKey{}
	ContextKeyClientIP    = clientIPKey{}
	ContextKeyUserAgent   = userAgentKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// -----------------------------------------------------------------------------
// Principal (authenticated caller and its capabilities)
// -----------------------------------------------------------------------------

// Capability names an action class a caller may perform.
type Capability string

const (
	CapManageCompliance      Capability = "ManageCompliance"
	CapApproveAuthorizations Capability = "ApproveAuthorizations"
	CapCreateIssuances       Capability = "CreateIssuances"
	CapViewCompliance        Capability = "ViewCompliance"
	CapPlatformOperator      Capability = "PlatformOperator"
)

// Caller is the authenticated principal of a request.
type Caller struct {
	Subject      string
	Capabilities map[Capability]bool
}

// NewPrincipal builds a caller with the given capabilities.
func NewPrincipal(subject string, caps ...Capability) Caller {
	set := make(map[Capability]bool, len(caps))
	for _, c := range caps {
		set[c] = true
	}
	return Caller{Subject: subject, Capabilities: set}
}

// Has reports whether the caller holds capability c.
func (c Caller) Has(cap Capability) bool {
	return c.Capabilities[cap]
}

// IsAnonymous reports whether no principal was authenticated.
func (c Caller) IsAnonymous() bool {
	return c.Subject == ""
}

// Principal retrieves the authenticated caller. Returns the zero Caller if unset.
func Principal(ctx context.Context) Caller {
	if p, ok := ctx.Value(ContextKeyPrincipal).(Caller); ok {
		return p
	}
	return Caller{}
}

// WithPrincipal injects the authenticated caller.
func WithPrincipal(ctx context.Context, p Caller) context.Context {
	return context.WithValue(ctx, ContextKeyPrincipal, p)
}

// Actor returns the principal subject or "system" for background work.
func Actor(ctx context.Context) string {
	if p := Principal(ctx); !p.IsAnonymous() {
		return p.Subject
	}
	return "system"
}

// -----------------------------------------------------------------------------
// Client metadata (IP, User-Agent)
// -----------------------------------------------------------------------------

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ContextKeyClientIP).(string); ok {
		return ip
	}
	return ""
}

// UserAgent retrieves the User-Agent from the context.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(ContextKeyUserAgent).(string); ok {
		return ua
	}
	return ""
}

// WithClientMetadata injects client IP and User-Agent into a context.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyClientIP, clientIP)
	ctx = context.WithValue(ctx, ContextKeyUserAgent, userAgent)
	return ctx
}

// -----------------------------------------------------------------------------
// Request metadata
// -----------------------------------------------------------------------------

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() outside HTTP requests (consumers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
