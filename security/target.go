package security

import (
	"net"
	"strings"
)

// Target is the parsed form of a grpc dial target.
type Target struct {
	// Scheme is the resolver scheme, empty for a bare "host:port".
	Scheme string
	// Host is the host part without port or brackets. For unix targets it
	// is the socket path.
	Host string
	// Port is empty when the target carries none.
	Port string
	// Unix is set for unix and unix-abstract targets.
	Unix bool
}

// ParseTarget understands the target forms accepted by grpc.NewClient:
//
//	dns:///host:port
//	dns://authority/host:port
//	passthrough:///host:port
//	unix:/path, unix:///path, unix-abstract:name
//	host:port, host
func ParseTarget(target string) (Target, bool) {
	target = strings.TrimSpace(target)
	if target == "" {
		return Target{}, false
	}

	scheme, rest, hasScheme := strings.Cut(target, ":")
	if hasScheme {
		switch strings.ToLower(scheme) {
		case "unix", "unix-abstract":
			path := strings.TrimPrefix(rest, "//")
			if path == "" {
				return Target{}, false
			}
			return Target{Scheme: strings.ToLower(scheme), Host: path, Unix: true}, true
		case "dns", "passthrough":
			if !strings.HasPrefix(rest, "//") {
				return Target{}, false
			}
			// Drop the optional authority.
			_, endpoint, ok := strings.Cut(strings.TrimPrefix(rest, "//"), "/")
			if !ok || endpoint == "" {
				return Target{}, false
			}
			t, ok := splitEndpoint(endpoint)
			t.Scheme = strings.ToLower(scheme)
			return t, ok
		}
	}
	return splitEndpoint(target)
}

func splitEndpoint(endpoint string) (Target, bool) {
	host, port, err := net.SplitHostPort(endpoint)
	if err != nil {
		// No port; accept a bare host or bracketed IPv6 literal.
		host = strings.TrimSuffix(strings.TrimPrefix(endpoint, "["), "]")
		port = ""
	}
	if host == "" || strings.ContainsAny(host, "/ ") {
		return Target{}, false
	}
	return Target{Host: host, Port: port}, true
}
