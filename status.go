package nanorpc

import "fmt"

// Status is one of the canonical status codes carried on terminal packets
// and transfer chunks. It deliberately mirrors the well known
// gRPC-style code space so that a codec built on top of this module can
// reuse its own status mapping without translation.
type Status uint32

const (
	StatusOK Status = iota
	StatusCancelled
	StatusUnknown
	StatusInvalidArgument
	StatusDeadlineExceeded
	StatusNotFound
	StatusAlreadyExists
	StatusPermissionDenied
	StatusResourceExhausted
	StatusFailedPrecondition
	StatusAborted
	StatusOutOfRange
	StatusUnimplemented
	StatusInternal
	StatusUnavailable
	StatusDataLoss
	StatusUnauthenticated
)

var statusNames = [...]string{
	"OK",
	"CANCELLED",
	"UNKNOWN",
	"INVALID_ARGUMENT",
	"DEADLINE_EXCEEDED",
	"NOT_FOUND",
	"ALREADY_EXISTS",
	"PERMISSION_DENIED",
	"RESOURCE_EXHAUSTED",
	"FAILED_PRECONDITION",
	"ABORTED",
	"OUT_OF_RANGE",
	"UNIMPLEMENTED",
	"INTERNAL",
	"UNAVAILABLE",
	"DATA_LOSS",
	"UNAUTHENTICATED",
}

func (this Status) String() string {
	if int(this) < len(statusNames) {
		return statusNames[this]
	}
	return fmt.Sprintf("STATUS(%d)", uint32(this))
}

// Ok reports whether this status represents success.
func (this Status) Ok() bool {
	return this == StatusOK
}

// Error adapts a Status to the error interface so it can be returned from
// Go functions that need both an error and a wire-level status. A StatusOK
// stored in an error variable is still a non-nil error whose message is
// "OK".
func (this Status) Error() string {
	return this.String()
}

// StatusError pairs a Status with a human-readable detail string. Local
// contract violations are returned as plain fmt.Errorf; StatusError is used
// only where the status itself must survive the error boundary so it can be
// placed on an outgoing packet.
type StatusError struct {
	Status Status
	Detail string
}

func (this *StatusError) Error() string {
	if this.Detail == "" {
		return this.Status.String()
	}
	return fmt.Sprintf("%s: %s", this.Status, this.Detail)
}

func newStatusError(status Status, format string, args ...interface{}) *StatusError {
	return &StatusError{Status: status, Detail: fmt.Sprintf(format, args...)}
}
