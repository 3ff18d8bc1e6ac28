package grpcserver

import (
	"errors"

	"github.com/and161185/cipherchat/internal/errs"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const errorDomain = "cipherchat"

// Reasons attached to PermissionDenied so clients can tell membership
// failures from permission failures.
const (
	ReasonNotEnrolled   = "NOT_ENROLLED"
	ReasonNotAuthorized = "NOT_AUTHORIZED"
)

// toStatus maps service sentinels to gRPC status codes.
func toStatus(op string, err error) error {
	switch {
	case errors.Is(err, errs.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, errs.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, errs.ErrAlreadyExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, errs.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, "bad credentials")
	case errors.Is(err, errs.ErrRateLimited):
		return status.Error(codes.ResourceExhausted, "rate limited")
	case errors.Is(err, errs.ErrVersionConflict):
		return status.Error(codes.FailedPrecondition, "version conflict")
	case errors.Is(err, errs.ErrNotEnrolled):
		return denied(ReasonNotEnrolled, "not a group member")
	case errors.Is(err, errs.ErrNotAuthorized):
		return denied(ReasonNotAuthorized, "not allowed")
	default:
		return status.Errorf(codes.Internal, "%s: internal error", op)
	}
}

func denied(reason, msg string) error {
	st := status.New(codes.PermissionDenied, msg)
	withInfo, err := st.WithDetails(&errdetails.ErrorInfo{Reason: reason, Domain: errorDomain})
	if err != nil {
		return st.Err()
	}
	return withInfo.Err()
}

// DeniedReason extracts the ErrorInfo reason of a PermissionDenied status.
func DeniedReason(err error) string {
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.PermissionDenied {
		return ""
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok {
			return info.GetReason()
		}
	}
	return ""
}
