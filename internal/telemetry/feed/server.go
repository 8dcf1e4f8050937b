// Package feed serves and consumes candidate telemetry over gRPC. The
// server fronts any telemetry source; the client is itself a telemetry
// source, so a correlator can read from a remote archive.
package feed

import (
	"context"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/clock-correlator/core"
	"github.com/signalsfoundry/clock-correlator/internal/logging"
	"github.com/signalsfoundry/clock-correlator/internal/observability"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "mmtc.telemetry.v1.TelemetryFeed"

const samplesInRangeMethod = "/" + ServiceName + "/SamplesInRange"

type feedServer interface {
	SamplesInRange(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*feedServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SamplesInRange", Handler: samplesInRangeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mmtc/telemetry/v1/feed.proto",
}

func samplesInRangeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(feedServer).SamplesInRange(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: samplesInRangeMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(feedServer).SamplesInRange(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Server answers range queries from a backing telemetry source. Each call
// brackets its query with Connect and Disconnect on the backend.
type Server struct {
	backend core.TelemetrySource
	log     logging.Logger
}

// NewServer wraps backend. log may be nil.
func NewServer(backend core.TelemetrySource, log logging.Logger) *Server {
	if log == nil {
		log = logging.Noop()
	}
	return &Server{backend: backend, log: log}
}

// SamplesInRange implements the feed RPC.
func (s *Server) SamplesInRange(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := logging.LoggerFromContext(ctx)
	if log == nil {
		log = s.log
	}

	start, stop, err := decodeRange(req)
	if err != nil {
		return nil, ToStatusError(err)
	}

	if err := s.backend.Connect(ctx); err != nil {
		log.Error(ctx, "telemetry backend connect failed", logging.Error(err))
		return nil, ToStatusError(err)
	}
	defer func() {
		if err := s.backend.Disconnect(ctx); err != nil {
			log.Warn(ctx, "telemetry backend disconnect failed", logging.Error(err))
		}
	}()

	samples, err := s.backend.SamplesInRange(ctx, start, stop)
	if err != nil {
		log.Error(ctx, "telemetry backend query failed",
			logging.Time("start", start),
			logging.Time("stop", stop),
			logging.Error(err),
		)
		return nil, ToStatusError(err)
	}
	resp, err := encodeSamples(samples)
	if err != nil {
		return nil, ToStatusError(err)
	}
	log.Debug(ctx, "served telemetry range",
		logging.Time("start", start),
		logging.Time("stop", stop),
		logging.Int("samples", len(samples)),
	)
	return resp, nil
}

// Register attaches srv to gs.
func Register(gs *grpc.Server, srv *Server) {
	gs.RegisterService(&serviceDesc, srv)
}

// NewGRPCServer returns a gRPC server carrying the feed service with
// tracing, run_id propagation and, when collector is non-nil, request
// metrics.
func NewGRPCServer(srv *Server, log logging.Logger, collector *observability.CorrelationCollector) *grpc.Server {
	interceptors := []grpc.UnaryServerInterceptor{
		RunIDUnaryServerInterceptor(log),
		TracingUnaryServerInterceptor(),
	}
	if collector != nil {
		interceptors = append(interceptors, collector.UnaryServerInterceptor())
	}
	gs := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(interceptors...),
	)
	Register(gs, srv)
	return gs
}
