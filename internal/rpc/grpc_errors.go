package rpc

import (
	"errors"

	"github.com/signalsfoundry/layered-infill/core"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorDomain is the ErrorInfo domain attached to every mapped status.
const ErrorDomain = "layeredinfill"

// ErrInvalidRequest is a package-level sentinel for structurally invalid
// requests rejected before they reach the engine.
var ErrInvalidRequest = errors.New("invalid request")

// ToStatusError maps engine errors onto gRPC status codes. The failure kind
// travels as the ErrorInfo reason so clients can recover it with KindFromError.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var code codes.Code
	kind := core.KindOf(err)
	switch {
	case errors.Is(err, ErrInvalidRequest):
		code = codes.InvalidArgument
		kind = core.KindInvalidParameter
	case kind == core.KindDegenerateBoundary,
		kind == core.KindMalformedWKT,
		kind == core.KindInvalidParameter:
		code = codes.InvalidArgument
	case kind == core.KindPatternNotFound,
		kind == core.KindNoTileForHeight:
		code = codes.NotFound
	case kind == core.KindInvalidTileBounds:
		code = codes.FailedPrecondition
	default:
		code = codes.Internal
	}

	st := status.New(code, err.Error())
	detailed, derr := st.WithDetails(&errdetails.ErrorInfo{
		Reason: string(kind),
		Domain: ErrorDomain,
	})
	if derr != nil {
		return st.Err()
	}
	return detailed.Err()
}

// KindFromError recovers the failure kind from a status produced by
// ToStatusError. Statuses without ErrorInfo report KindInternal unless OK.
func KindFromError(err error) core.Kind {
	if err == nil {
		return core.KindNone
	}
	st, ok := status.FromError(err)
	if !ok {
		return core.KindOf(err)
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok && info.GetDomain() == ErrorDomain {
			return core.Kind(info.GetReason())
		}
	}
	if st.Code() == codes.OK {
		return core.KindNone
	}
	return core.KindInternal
}
