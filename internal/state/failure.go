package state

import (
	"context"
	stderrors "errors"
	"log/slog"

	"github.com/hpungsan/arcana/internal/errors"
)

// CodeBusy marks a mutation rejected because another save is still running.
const CodeBusy errors.ErrorCode = "BUSY"

// ErrSaveInFlight is the cause of every CodeBusy failure.
var ErrSaveInFlight = stderrors.New("a save is already in progress")

// Failure is what the facade hands to a UI: a message safe to show the user,
// plus the classification needed to decide how to present it. The
// underlying error stays reachable through Unwrap for logging and tests.
type Failure struct {
	Resource  Resource
	Code      errors.ErrorCode
	Status    int
	Message   string
	Retryable bool

	err error
}

func (f *Failure) Error() string { return f.Message }

func (f *Failure) Unwrap() error { return f.err }

// AsFailure extracts a *Failure from err's chain.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if stderrors.As(err, &f) {
		return f, true
	}
	return nil, false
}

func busyFailure(res Resource) *Failure {
	return &Failure{
		Resource: res,
		Code:     CodeBusy,
		Status:   409,
		Message:  "Please wait, a save is already in progress.",
		err:      ErrSaveInFlight,
	}
}

// toFailure converts an operation error into a Failure and logs it. Caller
// mistakes keep their own message; everything else is replaced with a
// generic one so storage details never reach the user.
func toFailure(ctx context.Context, log *slog.Logger, res Resource, action string, err error) *Failure {
	if err == nil {
		return nil
	}
	if f, ok := AsFailure(err); ok {
		return f
	}

	f := &Failure{Resource: res, Code: errors.ErrInternal, Status: 500, err: err}
	aErr, ok := errors.As(err)
	if ok {
		f.Code = aErr.Code
		f.Status = aErr.Status
		f.Retryable = aErr.Retryable()
	}

	switch f.Code {
	case errors.ErrInvalidRequest, errors.ErrValidationFailed, errors.ErrContentTooLarge,
		errors.ErrNotFound, errors.ErrFileNotFound:
		f.Message = aErr.Message
		log.DebugContext(ctx, "request rejected",
			"resource", res, "action", action, "code", f.Code, "error", err)
		return f
	case errors.ErrCancelled:
		f.Message = "The request was cancelled."
		log.InfoContext(ctx, "request cancelled", "resource", res, "action", action)
		return f
	case errors.ErrStorage:
		f.Message = "Your saved data couldn't be reached. Please try again."
	default:
		f.Message = "Something went wrong. Please try again."
	}

	log.ErrorContext(ctx, "operation failed",
		"resource", res, "action", action, "code", f.Code, "error", err)
	return f
}
