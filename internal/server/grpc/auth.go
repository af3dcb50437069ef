package grpcserver

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/and161185/panel-auth/internal/authctx"
	"github.com/and161185/panel-auth/internal/errs"
	"github.com/and161185/panel-auth/internal/model"
)

// Guard resolves a bearer token to an identity holding one of required roles.
type Guard interface {
	Authenticate(ctx context.Context, bearer string, required ...string) (model.Identity, error)
}

// Policy decides which methods skip authentication and which need roles.
type Policy struct {
	// PublicPrefixes are full-method prefixes served without a bearer.
	PublicPrefixes []string
	// Roles maps a full method name to the roles allowed to call it.
	Roles map[string][]string
}

// DefaultPolicy leaves the health service public.
func DefaultPolicy() Policy {
	return Policy{PublicPrefixes: []string{"/grpc.health.v1.Health/"}}
}

func (p Policy) public(method string) bool {
	for _, pre := range p.PublicPrefixes {
		if strings.HasPrefix(method, pre) {
			return true
		}
	}
	return false
}

// AuthUnary authenticates unary calls and puts the identity into the handler context.
func AuthUnary(guard Guard, p Policy) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if p.public(info.FullMethod) {
			return next(ctx, req)
		}
		ctx, err := authenticate(ctx, guard, p.Roles[info.FullMethod])
		if err != nil {
			return nil, err
		}
		return next(ctx, req)
	}
}

// AuthStream is the streaming counterpart of AuthUnary.
func AuthStream(guard Guard, p Policy) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, next grpc.StreamHandler) error {
		if p.public(info.FullMethod) {
			return next(srv, ss)
		}
		ctx, err := authenticate(ss.Context(), guard, p.Roles[info.FullMethod])
		if err != nil {
			return err
		}
		return next(srv, &identityStream{ServerStream: ss, ctx: ctx})
	}
}

type identityStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *identityStream) Context() context.Context { return s.ctx }

func authenticate(ctx context.Context, guard Guard, roles []string) (context.Context, error) {
	tok, err := bearerTokenFromMD(ctx)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "unauthorized")
	}
	id, err := guard.Authenticate(ctx, tok, roles...)
	if err != nil {
		return nil, toStatus(err)
	}
	return authctx.WithIdentity(ctx, id), nil
}

func toStatus(err error) error {
	switch {
	case errs.IsAuthFailure(err):
		return status.Error(codes.Unauthenticated, "unauthorized")
	case errors.Is(err, errs.ErrForbidden):
		return status.Error(codes.PermissionDenied, "forbidden")
	default:
		return status.Error(codes.Internal, "internal error")
	}
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
