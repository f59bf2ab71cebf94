// Package grpcserver exposes the control surface over gRPC.
package grpcserver

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/storefront-sync/internal/convert"
	"github.com/and161185/storefront-sync/internal/service"
)

// Dispatcher executes control-surface requests.
type Dispatcher interface {
	Dispatch(ctx context.Context, req service.Request) service.Response
}

// Server adapts the dispatcher to the Control service.
type Server struct {
	d   Dispatcher
	log *zap.Logger
}

var _ ControlServer = (*Server)(nil)

// New constructs the Control server.
func New(d Dispatcher, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{d: d, log: log}
}

// Dispatch decodes the request, runs it and encodes the uniform response. Domain failures are
// reported inside the response, never as a gRPC status.
func (s *Server) Dispatch(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := convert.FromProtoRequest(in)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "bad request: %v", err)
	}
	if op, ok := OperatorFromCtx(ctx); ok {
		s.log.Debug("dispatch", zap.String("operator", op), zap.String("action", req.Action))
	}
	resp := s.d.Dispatch(ctx, req)
	out, err := convert.ToProtoResponse(resp)
	if err != nil {
		s.log.Error("encode response", zap.String("action", req.Action), zap.Error(err))
		return nil, status.Error(codes.Internal, "encode response")
	}
	return out, nil
}

func bearerTokenFromMD(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errors.New("no metadata")
	}
	for _, v := range md.Get("authorization") {
		v = strings.TrimSpace(v)
		if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
			t := strings.TrimSpace(v[7:])
			if t != "" {
				return t, nil
			}
		}
	}
	return "", errors.New("no bearer token")
}
