// Package grpc translates gRPC status errors returned by backend calls into
// error envelopes. The envelope code carries the numeric gRPC code, the HTTP
// status follows the conventional gRPC to HTTP mapping.
package grpc

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/probe-lab/go-envelope/envelope"
)

// HTTPStatusFromCode maps a gRPC code to the HTTP status used to transport it.
func HTTPStatusFromCode(code codes.Code) int {
	switch code {
	case codes.OK:
		return http.StatusOK
	case codes.Canceled:
		return 499 // client closed request
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists, codes.Aborted:
		return http.StatusConflict
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unimplemented:
		return http.StatusNotImplemented
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// FromStatus builds an error envelope from st. An OK status yields HTTP 200
// with code 0 and no data.
func FromStatus(st *status.Status) *envelope.Response {
	return envelope.ErrorWithCode(st.Message(), int(st.Code()), HTTPStatusFromCode(st.Code()))
}

// FromError builds an error envelope from err. Context cancellation and
// deadline errors map to their gRPC counterparts, any other error without a
// gRPC status is reported as codes.Unknown.
func FromError(err error) *envelope.Response {
	st, ok := status.FromError(err)
	if !ok && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		st = status.FromContextError(err)
	}
	return FromStatus(st)
}
