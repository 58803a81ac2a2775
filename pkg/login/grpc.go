package login

import (
	"context"
	"net"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/secretforge/secretforge-core/pkg/token"
)

// headerAuthorization is the incoming metadata key carrying the bearer
// token.
const headerAuthorization = "authorization"

// requestContextKey is the context key under which the validated
// [token.RequestContext] is stored.
type requestContextKey struct{}

// ContextWithRequest returns a context carrying the validated request
// context.
func ContextWithRequest(ctx context.Context, rc *token.RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// RequestFromContext returns the validated request context stored by the
// interceptors, or false when the call was not authenticated.
func RequestFromContext(ctx context.Context) (*token.RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey{}).(*token.RequestContext)
	return rc, ok
}

// UnaryServerInterceptor returns a gRPC unary interceptor that validates
// the bearer access token in incoming metadata against the lifecycle,
// checking the caller's source address against the method's trusted-IP
// allow-list, and stores the resulting request context for the handler.
func UnaryServerInterceptor(lc *token.Lifecycle) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := authenticate(ctx, lc)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor returns the stream counterpart of
// [UnaryServerInterceptor]. The stream is wrapped so the handler observes
// the enriched context.
func StreamServerInterceptor(lc *token.Lifecycle) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := authenticate(ss.Context(), lc)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
	}
}

// authenticate validates the call's bearer token and returns a context
// carrying the request context. Every validation failure maps to the gRPC
// Unauthenticated code with a uniform message.
func authenticate(ctx context.Context, lc *token.Lifecycle) (context.Context, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ctx, status.Error(codes.Unauthenticated, "missing metadata")
	}

	values := md.Get(headerAuthorization)
	if len(values) == 0 {
		return ctx, status.Error(codes.Unauthenticated, "missing authorization metadata")
	}
	bearer := extractBearerToken(values[0])
	if bearer == "" {
		return ctx, status.Error(codes.Unauthenticated, "invalid authorization format")
	}

	rc, err := lc.Validate(ctx, bearer, sourceIPFromPeer(ctx))
	if err != nil {
		return ctx, status.Error(codes.Unauthenticated, "access token is not valid")
	}
	return ContextWithRequest(ctx, rc), nil
}

// extractBearerToken strips the "Bearer " prefix from an authorization
// value. Returns "" when the value is not a bearer credential.
func extractBearerToken(value string) string {
	const prefix = "bearer "
	if len(value) <= len(prefix) || !strings.EqualFold(value[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(value[len(prefix):])
}

// sourceIPFromPeer returns the caller's address from the gRPC peer info,
// without the port. An absent peer yields "" and fails the trusted-IP
// check downstream whenever an allow-list is configured.
func sourceIPFromPeer(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(p.Addr.String())
	if err != nil {
		return p.Addr.String()
	}
	return host
}

// wrappedServerStream overrides Context so the handler sees the request
// context added by the interceptor.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
