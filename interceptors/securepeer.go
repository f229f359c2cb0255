package interceptors

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/Keksclan/goRawrCreds/security"
)

// errPlaintextPeer is allocated once to avoid per-request allocations on the hot path.
var errPlaintextPeer = status.Error(codes.PermissionDenied, "plaintext peer is not known to be secure")

// securePeer reports whether the caller reached us over TLS or from an
// address the classifier trusts for plaintext.
func securePeer(ctx context.Context, cls *security.Classifier) bool {
	p, ok := peer.FromContext(ctx)
	if !ok {
		return false
	}
	if _, ok := p.AuthInfo.(credentials.TLSInfo); ok {
		return true
	}
	return cls.IsKnownSecureAddr(p.Addr)
}

// SecurePeerUnary returns a unary server interceptor that rejects calls
// arriving in plaintext from addresses cls does not trust. It is the server
// side of the rule that bearer tokens never cross an unencrypted link.
func SecurePeerUnary(cls *security.Classifier) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if !securePeer(ctx, cls) {
			return nil, errPlaintextPeer
		}
		return handler(ctx, req)
	}
}

// SecurePeerStream is the stream counterpart of SecurePeerUnary.
func SecurePeerStream(cls *security.Classifier) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if !securePeer(ss.Context(), cls) {
			return errPlaintextPeer
		}
		return handler(srv, ss)
	}
}
