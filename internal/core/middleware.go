package core

import (
	"cmp"
	"slices"

	"google.golang.org/grpc"
)

// middleware represents a single interceptor pair (unary + stream) with a
// deterministic execution order. Lower Order values run first.
type middleware[U, S any] struct {
	Unary  *U
	Stream *S
	Order  int
}

// builder collects middleware entries and produces sorted interceptor
// slices ready for chaining.
type builder[U, S any] struct {
	entries []middleware[U, S]
}

func (b *builder[U, S]) add(order int, unary *U, stream *S) {
	b.entries = append(b.entries, middleware[U, S]{Unary: unary, Stream: stream, Order: order})
}

func (b *builder[U, S]) build() ([]U, []S) {
	slices.SortStableFunc(b.entries, func(a, c middleware[U, S]) int {
		return cmp.Compare(a.Order, c.Order)
	})

	var unary []U
	var stream []S
	for _, m := range b.entries {
		if m.Unary != nil {
			unary = append(unary, *m.Unary)
		}
		if m.Stream != nil {
			stream = append(stream, *m.Stream)
		}
	}
	return unary, stream
}

// MiddlewareBuilder collects server interceptors by order.
type MiddlewareBuilder struct {
	b builder[grpc.UnaryServerInterceptor, grpc.StreamServerInterceptor]
}

// Add registers a middleware entry with the given order.
// Either interceptor may be nil if only one direction is needed.
func (m *MiddlewareBuilder) Add(order int, unary grpc.UnaryServerInterceptor, stream grpc.StreamServerInterceptor) {
	m.b.add(order, ptrIf(unary != nil, unary), ptrIf(stream != nil, stream))
}

// Build sorts the collected middleware by Order (stable) and returns the
// separated unary and stream interceptor slices.
func (m *MiddlewareBuilder) Build() ([]grpc.UnaryServerInterceptor, []grpc.StreamServerInterceptor) {
	return m.b.build()
}

// ClientMiddlewareBuilder collects client interceptors by order.
type ClientMiddlewareBuilder struct {
	b builder[grpc.UnaryClientInterceptor, grpc.StreamClientInterceptor]
}

// Add registers a client middleware entry with the given order.
// Either interceptor may be nil if only one direction is needed.
func (m *ClientMiddlewareBuilder) Add(order int, unary grpc.UnaryClientInterceptor, stream grpc.StreamClientInterceptor) {
	m.b.add(order, ptrIf(unary != nil, unary), ptrIf(stream != nil, stream))
}

// Build sorts the collected middleware by Order (stable) and returns the
// separated unary and stream interceptor slices.
func (m *ClientMiddlewareBuilder) Build() ([]grpc.UnaryClientInterceptor, []grpc.StreamClientInterceptor) {
	return m.b.build()
}

func ptrIf[T any](ok bool, v T) *T {
	if !ok {
		return nil
	}
	return &v
}
