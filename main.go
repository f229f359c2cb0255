// Package gorawrcreds binds composite credentials to a gRPC channel.
//
// A Channel owns one grpc.ClientConn. The transport security credential is
// applied once when the channel is created; call credentials run before
// every call and their entries travel as request metadata:
//
//	tls, _ := tlscreds.New(tlscreds.Options{RootCerts: caPEM})
//	provider, _ := token.New(token.ClientCredentials(ccConfig))
//	cred, _ := composite.Combine(tls, []callcreds.CallCredential{
//		callcreds.NewOAuth(provider, "read"),
//	})
//	ch, _ := gorawrcreds.NewChannel("dns:///api.example.com:443", cred, gorawrcreds.DefaultOptions()...)
//	defer ch.Close()
//	client := pb.NewMyServiceClient(ch)
//
// A call whose credentials cannot be attached fails with an autherr.AuthError
// before anything is sent; the channel stays usable.
package gorawrcreds

// State is the lifecycle state of a Channel.
type State int32

const (
	// StateUnbound is a channel under construction.
	StateUnbound State = iota
	// StateBound is a channel that accepts calls.
	StateBound
	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateBound:
		return "bound"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
