package api

import (
	"net/http"

	"maidlink/internal/domain"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// httpStatus maps a service error onto a response code.
func httpStatus(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidation, domain.KindIntegrity:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindCollaborator:
		return http.StatusBadGateway
	case domain.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage hides internal details of 5xx failures from callers.
func publicMessage(err error, code int) string {
	switch {
	case code == http.StatusBadGateway:
		return domain.ErrCollaborator.Error()
	case code >= http.StatusInternalServerError:
		return "internal error"
	default:
		return err.Error()
	}
}

func grpcError(err error) error {
	if err == nil {
		return nil
	}
	var code codes.Code
	switch domain.KindOf(err) {
	case domain.KindValidation, domain.KindIntegrity:
		code = codes.InvalidArgument
	case domain.KindNotFound:
		code = codes.NotFound
	case domain.KindConflict:
		code = codes.FailedPrecondition
	case domain.KindCollaborator:
		code = codes.Unavailable
	case domain.KindRateLimited:
		code = codes.ResourceExhausted
	default:
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(code, err.Error())
}
