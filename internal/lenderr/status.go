package lenderr

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GRPCCode maps a failure to the gRPC status code returned to callers
func GRPCCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	var e *Error
	if !errors.As(err, &e) {
		return codes.Internal
	}
	switch e.Kind() {
	case KindInputValidation, KindBounds:
		return codes.InvalidArgument
	case KindStaleness, KindSolvency:
		return codes.FailedPrecondition
	case KindAuthorization:
		return codes.PermissionDenied
	case KindNotFound:
		return codes.NotFound
	case KindConflict:
		return codes.AlreadyExists
	default:
		return codes.Internal
	}
}

// Status converts err into a gRPC status error. The failure code name is
// carried as the status message prefix so clients can recover it.
func Status(err error) error {
	if err == nil {
		return nil
	}
	return status.Error(GRPCCode(err), err.Error())
}
