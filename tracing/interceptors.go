// Package tracing provides OpenTelemetry interceptors for channels and for
// the verifier server, plus the span helper the token provider uses around
// refreshes. Tracing is only active when a Config is wired in.
package tracing

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	grpcStatus "google.golang.org/grpc/status"
)

// InstrumentationName names the tracer used by this module.
const InstrumentationName = "github.com/Keksclan/goRawrCreds/tracing"

// Config holds the OpenTelemetry configuration used by the interceptors.
type Config struct {
	// TracerProvider supplies the Tracer. When nil the global
	// otel.GetTracerProvider() is used.
	TracerProvider trace.TracerProvider

	// Propagators injects and extracts trace context. When nil the global
	// otel.GetTextMapPropagator() is used.
	Propagators propagation.TextMapPropagator
}

func (c *Config) tracer() trace.Tracer {
	return Tracer(c.TracerProvider)
}

func (c *Config) propagators() propagation.TextMapPropagator {
	if c.Propagators != nil {
		return c.Propagators
	}
	return otel.GetTextMapPropagator()
}

// Tracer returns this module's tracer from tp, or from the global provider
// when tp is nil.
func Tracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(InstrumentationName)
}

// UnaryClientInterceptor starts a client span per call and injects its
// context into the outgoing metadata. A nil cfg yields a passthrough.
func UnaryClientInterceptor(cfg *Config) grpc.UnaryClientInterceptor {
	if cfg == nil {
		return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
			return invoker(ctx, method, req, reply, cc, opts...)
		}
	}
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx, span := startClient(ctx, cfg, method)
		defer span.End()

		err := invoker(ctx, method, req, reply, cc, opts...)
		recordStatus(span, err)
		return err
	}
}

// StreamClientInterceptor starts a client span per stream. The span ends
// when the stream fails to open or when RecvMsg reports the end of the
// stream. A nil cfg yields a passthrough.
func StreamClientInterceptor(cfg *Config) grpc.StreamClientInterceptor {
	if cfg == nil {
		return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
			return streamer(ctx, desc, cc, method, opts...)
		}
	}
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		ctx, span := startClient(ctx, cfg, method)

		cs, err := streamer(ctx, desc, cc, method, opts...)
		if err != nil {
			recordStatus(span, err)
			span.End()
			return nil, err
		}
		return &tracedClientStream{ClientStream: cs, span: span}, nil
	}
}

// UnaryServerInterceptor creates a server span for every unary RPC. A nil
// cfg yields a passthrough.
func UnaryServerInterceptor(cfg *Config) grpc.UnaryServerInterceptor {
	if cfg == nil {
		return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
			return handler(ctx, req)
		}
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx = extract(ctx, cfg)
		ctx, span := cfg.tracer().Start(ctx, info.FullMethod, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()
		span.SetAttributes(rpcAttributes(info.FullMethod)...)

		resp, err := handler(ctx, req)
		recordStatus(span, err)
		return resp, err
	}
}

// StreamServerInterceptor creates a server span for every streaming RPC. A
// nil cfg yields a passthrough.
func StreamServerInterceptor(cfg *Config) grpc.StreamServerInterceptor {
	if cfg == nil {
		return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
			return handler(srv, ss)
		}
	}
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx := extract(ss.Context(), cfg)
		ctx, span := cfg.tracer().Start(ctx, info.FullMethod, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()
		span.SetAttributes(rpcAttributes(info.FullMethod)...)

		err := handler(srv, &wrappedStream{ServerStream: ss, ctx: ctx})
		recordStatus(span, err)
		return err
	}
}

// StartAcquisition starts an internal span around a token refresh for
// scope. The caller must call the returned finish func with the refresh
// result.
func StartAcquisition(ctx context.Context, tp trace.TracerProvider, scope string) (context.Context, func(error)) {
	ctx, span := Tracer(tp).Start(ctx, "token.acquire", trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(attribute.String("rawr.token.scope", scope))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

// --- helpers ----------------------------------------------------------------

// metadataCarrier adapts gRPC [metadata.MD] to the OTel
// [propagation.TextMapCarrier] interface.
type metadataCarrier metadata.MD

func (mc metadataCarrier) Get(key string) string {
	vals := metadata.MD(mc).Get(key)
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

func (mc metadataCarrier) Set(key, value string) {
	metadata.MD(mc).Set(key, value)
}

func (mc metadataCarrier) Keys() []string {
	keys := make([]string, 0, len(mc))
	for k := range mc {
		keys = append(keys, k)
	}
	return keys
}

func startClient(ctx context.Context, cfg *Config, method string) (context.Context, trace.Span) {
	ctx, span := cfg.tracer().Start(ctx, method, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(rpcAttributes(method)...)
	return inject(ctx, cfg), span
}

// inject writes the span context of ctx into its outgoing metadata.
func inject(ctx context.Context, cfg *Config) context.Context {
	md, ok := metadata.FromOutgoingContext(ctx)
	if ok {
		md = md.Copy()
	} else {
		md = metadata.MD{}
	}
	cfg.propagators().Inject(ctx, metadataCarrier(md))
	return metadata.NewOutgoingContext(ctx, md)
}

// extract pulls trace context from incoming gRPC metadata into ctx.
func extract(ctx context.Context, cfg *Config) context.Context {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		md = metadata.MD{}
	}
	return cfg.propagators().Extract(ctx, metadataCarrier(md))
}

func rpcAttributes(fullMethod string) []attribute.KeyValue {
	service, method := splitFullMethod(fullMethod)
	return []attribute.KeyValue{
		attribute.String("rpc.system", "grpc"),
		attribute.String("rpc.service", service),
		attribute.String("rpc.method", method),
	}
}

// splitFullMethod splits "/service/method" into ("service", "method").
func splitFullMethod(fullMethod string) (string, string) {
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	service, method, ok := strings.Cut(fullMethod, "/")
	if !ok {
		return fullMethod, ""
	}
	return service, method
}

// recordStatus sets the span status and records the gRPC status code.
func recordStatus(span trace.Span, err error) {
	st, _ := grpcStatus.FromError(err)
	span.SetAttributes(attribute.String("rpc.grpc.status_code", st.Code().String()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, st.Message())
	} else {
		span.SetStatus(codes.Ok, "")
	}
}

// wrappedStream overrides Context() to carry the traced context.
type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context { return w.ctx }

// tracedClientStream ends its span once the stream is finished.
type tracedClientStream struct {
	grpc.ClientStream
	span trace.Span
	once sync.Once
}

func (s *tracedClientStream) RecvMsg(m any) error {
	err := s.ClientStream.RecvMsg(m)
	if err != nil {
		s.once.Do(func() {
			if errors.Is(err, io.EOF) {
				recordStatus(s.span, nil)
			} else {
				recordStatus(s.span, err)
			}
			s.span.End()
		})
	}
	return err
}
