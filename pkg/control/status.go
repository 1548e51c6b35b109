package control

import (
	"github.com/core-tools/hsu-deployer/pkg/errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// toStatus maps domain errors onto gRPC status codes
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	code := codes.Internal
	switch {
	case errors.IsValidationError(err):
		code = codes.InvalidArgument
	case errors.IsNotFoundError(err):
		code = codes.NotFound
	case errors.IsConflictError(err):
		code = codes.Aborted
	case errors.IsLifecycleError(err), errors.IsDeploymentError(err):
		code = codes.FailedPrecondition
	case errors.IsTimeoutError(err):
		code = codes.DeadlineExceeded
	case errors.IsCancelledError(err):
		code = codes.Canceled
	}
	return status.Error(code, err.Error())
}

// fromStatus maps gRPC status codes back onto domain errors
func fromStatus(err error, operation string) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return errors.NewNetworkError(operation+" failed", err)
	}

	message := st.Message()
	var domainErr *errors.DomainError
	switch st.Code() {
	case codes.InvalidArgument:
		domainErr = errors.NewValidationError(message, nil)
	case codes.NotFound:
		domainErr = errors.NewNotFoundError(message, nil)
	case codes.Aborted, codes.AlreadyExists:
		domainErr = errors.NewConflictError(message, nil)
	case codes.FailedPrecondition:
		domainErr = errors.NewLifecycleError(message, nil)
	case codes.DeadlineExceeded:
		domainErr = errors.NewTimeoutError(message, nil)
	case codes.Canceled:
		domainErr = errors.NewCancelledError(message, nil)
	case codes.Unavailable:
		domainErr = errors.NewNetworkError(message, nil)
	default:
		domainErr = errors.NewInternalError(message, nil)
	}
	return domainErr.WithContext("operation", operation)
}
