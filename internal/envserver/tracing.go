package envserver

import (
	"context"

	"github.com/signalsfoundry/junctionbox-simulator/internal/logging"
	"github.com/signalsfoundry/junctionbox-simulator/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const tracerName = "github.com/signalsfoundry/junctionbox-simulator/internal/envserver"

// Span attribute keys shared by RPC and handler spans.
const (
	attrSessionID = attribute.Key("env.session_id")
	attrEpisodeID = attribute.Key("env.episode_id")
	attrRequestID = attribute.Key("request_id")
)

// TracingUnaryServerInterceptor names the RPC span after the environment
// method and tags it with the session and episode it touched. Ids come from
// the request, the context and, for Reset, the reply that allocated them.
// A server span is started when no stats handler created one.
func TracingUnaryServerInterceptor() grpc.UnaryServerInterceptor {
	tracer := otel.Tracer(tracerName)

	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		_, method := observability.SplitMethod(info.FullMethod)
		spanName := "EnvironmentService/" + method

		span := trace.SpanFromContext(ctx)
		created := false
		if !span.SpanContext().IsValid() {
			ctx, span = tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindServer))
			created = true
		} else {
			span.SetName(spanName)
		}
		if created {
			defer span.End()
		}

		attrs := []attribute.KeyValue{attribute.String("env.operation", method)}
		if reqID := logging.RequestIDFromContext(ctx); reqID != "" {
			attrs = append(attrs, attrRequestID.String(reqID))
		}
		if episodeID := logging.EpisodeIDFromContext(ctx); episodeID != "" {
			attrs = append(attrs, attrEpisodeID.String(episodeID))
		}
		if msg, ok := req.(*structpb.Struct); ok {
			if id := msg.GetFields()[fieldSessionID].GetStringValue(); id != "" {
				attrs = append(attrs, attrSessionID.String(id))
			}
		}
		span.SetAttributes(attrs...)

		resp, err := handler(ctx, req)
		if err != nil {
			span.RecordError(err)
			return resp, err
		}
		if msg, ok := resp.(*structpb.Struct); ok {
			span.SetAttributes(replyIDs(msg)...)
		}
		return resp, nil
	}
}

func replyIDs(msg *structpb.Struct) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	f := msg.GetFields()
	if id := f[fieldSessionID].GetStringValue(); id != "" {
		attrs = append(attrs, attrSessionID.String(id))
	}
	if id := f[fieldEpisodeID].GetStringValue(); id != "" {
		attrs = append(attrs, attrEpisodeID.String(id))
	}
	return attrs
}

// StartSessionSpan starts a handler span for an operation on one session.
// sessionID is empty when Reset has not allocated the session yet; the
// episode id is picked up from ctx when present.
func StartSessionSpan(ctx context.Context, op, sessionID string, extra ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs := make([]attribute.KeyValue, 0, len(extra)+2)
	if sessionID != "" {
		attrs = append(attrs, attrSessionID.String(sessionID))
	}
	if episodeID := logging.EpisodeIDFromContext(ctx); episodeID != "" {
		attrs = append(attrs, attrEpisodeID.String(episodeID))
	}
	attrs = append(attrs, extra...)
	return otel.Tracer(tracerName).Start(ctx, "EnvironmentService."+op, trace.WithAttributes(attrs...))
}

// tagEpisode records the episode a handler span worked on and carries it in
// ctx for the log lines that follow.
func tagEpisode(ctx context.Context, span trace.Span, episodeID string) context.Context {
	if episodeID == "" {
		return ctx
	}
	span.SetAttributes(attrEpisodeID.String(episodeID))
	return logging.ContextWithEpisodeID(ctx, episodeID)
}
