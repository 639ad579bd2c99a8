package rpc

import (
	"errors"
	"fmt"
	"testing"

	"github.com/signalsfoundry/layered-infill/core"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestToStatusError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		code    codes.Code
		kind    core.Kind
		wantNil bool
	}{
		{name: "nil", err: nil, wantNil: true},
		{name: "status passthrough", err: status.Error(codes.PermissionDenied, "denied"), code: codes.PermissionDenied, kind: core.KindInternal},
		{name: "invalid request", err: fmt.Errorf("%w: both boundaries", ErrInvalidRequest), code: codes.InvalidArgument, kind: core.KindInvalidParameter},
		{name: "degenerate boundary", err: core.ErrDegenerateBoundary, code: codes.InvalidArgument, kind: core.KindDegenerateBoundary},
		{name: "malformed wkt", err: fmt.Errorf("boundary_wkt: %w", core.ErrMalformedWKT), code: codes.InvalidArgument, kind: core.KindMalformedWKT},
		{name: "invalid parameter", err: core.ErrInvalidParameter, code: codes.InvalidArgument, kind: core.KindInvalidParameter},
		{name: "pattern not found", err: core.ErrPatternNotFound, code: codes.NotFound, kind: core.KindPatternNotFound},
		{name: "no tile for height", err: core.ErrNoTileForHeight, code: codes.NotFound, kind: core.KindNoTileForHeight},
		{name: "invalid tile bounds", err: core.ErrInvalidTileBounds, code: codes.FailedPrecondition, kind: core.KindInvalidTileBounds},
		{name: "fallback", err: errors.New("boom"), code: codes.Internal, kind: core.KindInternal},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := ToStatusError(tc.err)
			if tc.wantNil {
				if got != nil {
					t.Fatalf("ToStatusError(nil) = %v, want nil", got)
				}
				return
			}

			if got == nil {
				t.Fatalf("ToStatusError(%v) = nil, want error", tc.err)
			}
			if code := status.Code(got); code != tc.code {
				t.Fatalf("ToStatusError(%v) code = %v, want %v", tc.err, code, tc.code)
			}
			if kind := KindFromError(got); kind != tc.kind {
				t.Fatalf("KindFromError(%v) = %q, want %q", got, kind, tc.kind)
			}
		})
	}
}

func TestKindFromErrorPlainErrors(t *testing.T) {
	t.Parallel()

	if got := KindFromError(nil); got != core.KindNone {
		t.Fatalf("KindFromError(nil) = %q, want none", got)
	}
	if got := KindFromError(core.ErrNoTileForHeight); got != core.KindNoTileForHeight {
		t.Fatalf("KindFromError(sentinel) = %q, want %q", got, core.KindNoTileForHeight)
	}
}
