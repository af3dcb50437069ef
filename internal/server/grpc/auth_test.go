package grpcserver

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/and161185/panel-auth/internal/authctx"
	"github.com/and161185/panel-auth/internal/errs"
	"github.com/and161185/panel-auth/internal/model"
)

type fakeGuard struct {
	valid    string
	roles    []string
	err      error
	required []string
}

func (g *fakeGuard) Authenticate(_ context.Context, bearer string, required ...string) (model.Identity, error) {
	g.required = required
	if g.err != nil {
		return model.Identity{}, g.err
	}
	if bearer != g.valid {
		return model.Identity{}, errs.ErrUnauthorized
	}
	id := model.Identity{UserID: 1, Email: "a@b.c", Roles: g.roles, JTI: "j"}
	if !id.HasAnyRole(required...) {
		return model.Identity{}, errs.ErrForbidden
	}
	return id, nil
}

func ctxAuth(token string) context.Context {
	return metadata.NewIncomingContext(context.Background(),
		metadata.Pairs("authorization", "Bearer "+token))
}

func Test_bearerTokenFromMD_OkAndErrors(t *testing.T) {
	t.Parallel()

	got, err := bearerTokenFromMD(ctxAuth("abc.def.ghi"))
	if err != nil || got != "abc.def.ghi" {
		t.Fatalf("ok: got=%q err=%v", got, err)
	}

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "bearer lower"))
	if got, err := bearerTokenFromMD(ctx); err != nil || got != "lower" {
		t.Fatalf("scheme is case-insensitive: got=%q err=%v", got, err)
	}

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Basic foo"))
	if _, err := bearerTokenFromMD(ctx); err == nil {
		t.Fatalf("want error on non-bearer")
	}

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer   "))
	if _, err := bearerTokenFromMD(ctx); err == nil {
		t.Fatalf("want error on empty token")
	}

	if _, err := bearerTokenFromMD(context.Background()); err == nil {
		t.Fatalf("want error on no metadata")
	}
}

func TestAuthUnary(t *testing.T) {
	t.Parallel()

	g := &fakeGuard{valid: "good", roles: []string{"moderator"}}
	p := Policy{
		PublicPrefixes: []string{"/grpc.health.v1.Health/"},
		Roles:          map[string][]string{"/pa.Admin/Purge": {"admin"}},
	}
	ic := AuthUnary(g, p)

	var seen model.Identity
	h := func(ctx context.Context, req any) (any, error) {
		seen, _ = authctx.IdentityFromCtx(ctx)
		return "ok", nil
	}
	call := func(ctx context.Context, method string) error {
		_, err := ic(ctx, nil, &grpc.UnaryServerInfo{FullMethod: method}, h)
		return err
	}

	if err := call(context.Background(), "/grpc.health.v1.Health/Check"); err != nil {
		t.Fatalf("public method: %v", err)
	}
	if err := call(context.Background(), "/pa.Admin/Stats"); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("missing bearer: want Unauthenticated, got %v", err)
	}
	if err := call(ctxAuth("bad"), "/pa.Admin/Stats"); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("bad bearer: want Unauthenticated, got %v", err)
	}
	if err := call(ctxAuth("good"), "/pa.Admin/Stats"); err != nil {
		t.Fatalf("good bearer: %v", err)
	}
	if seen.UserID != 1 {
		t.Fatalf("identity must reach handler, got %+v", seen)
	}
	if err := call(ctxAuth("good"), "/pa.Admin/Purge"); status.Code(err) != codes.PermissionDenied {
		t.Fatalf("role gate: want PermissionDenied, got %v", err)
	}
	if len(g.required) != 1 || g.required[0] != "admin" {
		t.Fatalf("required roles not passed: %v", g.required)
	}

	g.err = errors.New("db down")
	err := call(ctxAuth("good"), "/pa.Admin/Stats")
	if status.Code(err) != codes.Internal {
		t.Fatalf("store failure: want Internal, got %v", err)
	}
}

type fakeStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *fakeStream) Context() context.Context { return s.ctx }

func TestAuthStream(t *testing.T) {
	t.Parallel()

	g := &fakeGuard{valid: "good"}
	ic := AuthStream(g, DefaultPolicy())
	info := &grpc.StreamServerInfo{FullMethod: "/pa.Admin/Tail"}

	var seen bool
	h := func(srv any, ss grpc.ServerStream) error {
		_, seen = authctx.IdentityFromCtx(ss.Context())
		return nil
	}

	if err := ic(nil, &fakeStream{ctx: context.Background()}, info, h); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("want Unauthenticated, got %v", err)
	}
	if err := ic(nil, &fakeStream{ctx: ctxAuth("good")}, info, h); err != nil || !seen {
		t.Fatalf("want identity in stream ctx, err=%v seen=%v", err, seen)
	}
}
