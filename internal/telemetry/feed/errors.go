package feed

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/clock-correlator/internal/telemetry/memory"
)

var (
	// ErrInvalidRequest marks a malformed range request or sample payload.
	ErrInvalidRequest = errors.New("invalid telemetry feed request")
	// ErrUnavailable is returned by the client when the feed cannot be
	// reached.
	ErrUnavailable = errors.New("telemetry feed unavailable")
)

// ToStatusError maps feed and backend errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, ErrInvalidRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, memory.ErrNotConnected):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// fromStatusError turns a status returned by the feed back into an error
// that callers can match with errors.Is.
func fromStatusError(op string, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unavailable:
		return &Error{Op: op, Code: st.Code(), Msg: st.Message(), sentinel: ErrUnavailable}
	case codes.InvalidArgument:
		return &Error{Op: op, Code: st.Code(), Msg: st.Message(), sentinel: ErrInvalidRequest}
	case codes.Canceled:
		return &Error{Op: op, Code: st.Code(), Msg: st.Message(), sentinel: context.Canceled}
	case codes.DeadlineExceeded:
		return &Error{Op: op, Code: st.Code(), Msg: st.Message(), sentinel: context.DeadlineExceeded}
	default:
		return &Error{Op: op, Code: st.Code(), Msg: st.Message()}
	}
}

// Error is a failed feed call.
type Error struct {
	Op   string
	Code codes.Code
	Msg  string

	sentinel error
}

func (e *Error) Error() string {
	return "telemetry feed " + e.Op + ": " + e.Code.String() + ": " + e.Msg
}

func (e *Error) Unwrap() error { return e.sentinel }
