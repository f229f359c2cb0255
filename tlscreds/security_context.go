package tlscreds

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"google.golang.org/grpc/credentials"

	"github.com/Keksclan/goRawrCreds/autherr"
)

// SecurityContext is an immutable snapshot of a negotiated handshake.
type SecurityContext struct {
	// PeerCommonName is the subject CN of the peer leaf certificate.
	PeerCommonName string
	PeerDNSNames   []string
	PeerURIs       []string

	TLSVersion  uint16
	CipherSuite uint16
	ServerName  string

	// Verified is true when the peer chain was verified against the roots.
	Verified bool
	// RootOfTrust is "system" or the number of supplied roots.
	RootOfTrust string

	NegotiatedAt time.Time
}

// Version returns the TLS version name, e.g. "TLS 1.3".
func (s *SecurityContext) Version() string { return tls.VersionName(s.TLSVersion) }

// Cipher returns the cipher suite name.
func (s *SecurityContext) Cipher() string { return tls.CipherSuiteName(s.CipherSuite) }

// newSecurityContext builds a SecurityContext from a finished handshake.
func newSecurityContext(state tls.ConnectionState, rootDesc string) *SecurityContext {
	sc := &SecurityContext{
		TLSVersion:   state.Version,
		CipherSuite:  state.CipherSuite,
		ServerName:   state.ServerName,
		Verified:     len(state.VerifiedChains) > 0,
		RootOfTrust:  rootDesc,
		NegotiatedAt: time.Now(),
	}
	if len(state.PeerCertificates) > 0 {
		leaf := state.PeerCertificates[0]
		sc.PeerCommonName = leaf.Subject.CommonName
		sc.PeerDNSNames = append([]string(nil), leaf.DNSNames...)
		for _, u := range leaf.URIs {
			sc.PeerURIs = append(sc.PeerURIs, u.String())
		}
	}
	return sc
}

// Observer receives the SecurityContext of every completed client handshake.
// A reconnect on the same channel produces a new one.
type Observer func(*SecurityContext)

// observed decorates TLS transport credentials with an Observer.
type observed struct {
	credentials.TransportCredentials
	observer Observer
	rootDesc string
}

func (o *observed) ClientHandshake(ctx context.Context, authority string, rawConn net.Conn) (net.Conn, credentials.AuthInfo, error) {
	conn, info, err := o.TransportCredentials.ClientHandshake(ctx, authority, rawConn)
	if err != nil {
		return nil, nil, autherr.Handshake("tlscreds.ClientHandshake", err)
	}
	if tlsInfo, ok := info.(credentials.TLSInfo); ok {
		o.observer(newSecurityContext(tlsInfo.State, o.rootDesc))
	}
	return conn, info, nil
}

func (o *observed) Clone() credentials.TransportCredentials {
	return &observed{
		TransportCredentials: o.TransportCredentials.Clone(),
		observer:             o.observer,
		rootDesc:             o.rootDesc,
	}
}
