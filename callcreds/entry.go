package callcreds

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/grpc/metadata"
)

// binarySuffix marks metadata keys whose values are arbitrary bytes.
const binarySuffix = "-bin"

// Entry is a single outgoing metadata header. Keys are stored lower case.
type Entry struct {
	Key   string
	Value []byte
}

// Binary reports whether e carries a binary value.
func (e Entry) Binary() bool { return strings.HasSuffix(e.Key, binarySuffix) }

// String never prints the value: entries usually hold secrets.
func (e Entry) String() string { return e.Key + ": <redacted>" }

// NewEntry returns a text entry. The value must be printable ASCII and the
// key must not end in "-bin".
func NewEntry(key, value string) (Entry, error) {
	k, err := normalizeKey(key)
	if err != nil {
		return Entry{}, err
	}
	if strings.HasSuffix(k, binarySuffix) {
		return Entry{}, fmt.Errorf("callcreds: key %q is binary, use NewBinaryEntry", k)
	}
	for i := 0; i < len(value); i++ {
		if c := value[i]; c < 0x20 || c > 0x7e {
			return Entry{}, fmt.Errorf("callcreds: value for %q has non-printable byte 0x%02x", k, c)
		}
	}
	return Entry{Key: k, Value: []byte(value)}, nil
}

// NewBinaryEntry returns a binary entry. The key must end in "-bin". The
// value is copied.
func NewBinaryEntry(key string, value []byte) (Entry, error) {
	k, err := normalizeKey(key)
	if err != nil {
		return Entry{}, err
	}
	if !strings.HasSuffix(k, binarySuffix) {
		return Entry{}, fmt.Errorf("callcreds: binary key %q must end in %q", k, binarySuffix)
	}
	return Entry{Key: k, Value: append([]byte(nil), value...)}, nil
}

// Bearer returns the "authorization: <typ> <token>" entry. An empty typ
// means "Bearer".
func Bearer(typ, token string) (Entry, error) {
	if token == "" {
		return Entry{}, fmt.Errorf("callcreds: empty token")
	}
	if typ == "" {
		typ = "Bearer"
	}
	return NewEntry("authorization", typ+" "+token)
}

func normalizeKey(key string) (string, error) {
	k := strings.ToLower(key)
	if k == "" {
		return "", fmt.Errorf("callcreds: empty metadata key")
	}
	if strings.HasPrefix(k, "grpc-") {
		return "", fmt.Errorf("callcreds: metadata key %q is reserved", k)
	}
	for i := 0; i < len(k); i++ {
		c := k[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-' || c == '_' || c == '.' {
			continue
		}
		return "", fmt.Errorf("callcreds: metadata key %q has invalid byte 0x%02x", k, c)
	}
	return k, nil
}

// AppendToOutgoing adds entries to the outgoing metadata of ctx, preserving
// entry order. Binary values are encoded by the transport.
func AppendToOutgoing(ctx context.Context, entries []Entry) context.Context {
	if len(entries) == 0 {
		return ctx
	}
	kv := make([]string, 0, 2*len(entries))
	for _, e := range entries {
		kv = append(kv, e.Key, string(e.Value))
	}
	return metadata.AppendToOutgoingContext(ctx, kv...)
}

// ToMap flattens entries for grpc's PerRPCCredentials hook. A repeated key
// keeps its last value.
func ToMap(entries []Entry) map[string]string {
	m := make(map[string]string, len(entries))
	for _, e := range entries {
		m[e.Key] = string(e.Value)
	}
	return m
}
