package command

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-errors"
)

const (
	ErrCodeMalformedCommand    = "MALFORMED_COMMAND"
	ErrCodeDuplicateRequest    = "DUPLICATE_REQUEST"
	ErrCodeAlreadySettled      = "ALREADY_SETTLED"
	ErrCodeAwaitLockUnderflow  = "AWAIT_LOCK_UNDERFLOW"
	ErrCodeProcessNotFound     = "PROCESS_NOT_FOUND"
	ErrCodeHandlerNotFound     = "HANDLER_NOT_FOUND"
	ErrCodeRouteNotFound       = "ROUTE_NOT_FOUND"
	ErrCodeDuplicateDefinition = "DUPLICATE_DEFINITION"
	ErrCodeInvalidDefinition   = "INVALID_DEFINITION"
	ErrCodeSequenceExhausted   = "SEQUENCE_EXHAUSTED"
	ErrCodePanic               = "PANIC"
)

var (
	ErrMalformedCommand = errors.New("malformed command", errors.CategoryBadInput).
				WithTextCode(ErrCodeMalformedCommand)
	ErrDuplicateRequest = errors.New("request with this id is already pending", errors.CategoryInternal).
				WithTextCode(ErrCodeDuplicateRequest)
	ErrAlreadySettled = errors.New("future already settled", errors.CategoryInternal).
				WithTextCode(ErrCodeAlreadySettled)
	ErrAwaitLockUnderflow = errors.New("await lock dropped below zero", errors.CategoryInternal).
				WithTextCode(ErrCodeAwaitLockUnderflow)
	ErrProcessNotFound = errors.New("workflow process not found", errors.CategoryNotFound).
				WithTextCode(ErrCodeProcessNotFound)
	ErrHandlerNotFound = errors.New("handler not found", errors.CategoryNotFound).
				WithTextCode(ErrCodeHandlerNotFound)
	ErrRouteNotFound = errors.New("route not found", errors.CategoryNotFound).
				WithTextCode(ErrCodeRouteNotFound)
	ErrDuplicateDefinition = errors.New("definition already registered", errors.CategoryConflict).
				WithTextCode(ErrCodeDuplicateDefinition)
	ErrInvalidDefinition = errors.New("invalid definition", errors.CategoryValidation).
				WithTextCode(ErrCodeInvalidDefinition)
	ErrSequenceExhausted = errors.New("no free command id left", errors.CategoryInternal).
				WithTextCode(ErrCodeSequenceExhausted)
	ErrPanic = errors.New("recovered from panic", errors.CategoryInternal).
			WithTextCode(ErrCodePanic)
)

// CloneError copies base replacing message, source and metadata when given.
func CloneError(base *errors.Error, message string, source error, metadata map[string]any) *errors.Error {
	if base == nil {
		base = ErrMalformedCommand
	}
	err := base.Clone()
	if text := strings.TrimSpace(message); text != "" {
		err.Message = text
	}
	if source != nil {
		err.Source = source
	}
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

// ErrorCode returns the text code of err, empty for foreign errors.
func ErrorCode(err error) string {
	var ge *errors.Error
	if stderrors.As(err, &ge) {
		return ge.TextCode
	}
	return ""
}

// HasCode reports whether err carries the given text code.
func HasCode(err error, code string) bool {
	return err != nil && ErrorCode(err) == code
}

// IsInvariantViolation reports whether err breaks a dispatch rule: a
// duplicate request id, a second settlement or an await lock underflow.
func IsInvariantViolation(err error) bool {
	switch ErrorCode(err) {
	case ErrCodeDuplicateRequest, ErrCodeAlreadySettled, ErrCodeAwaitLockUnderflow:
		return true
	}
	return false
}

func NewMalformedError(message string, args ...any) *errors.Error {
	if len(args) > 0 {
		message = fmt.Sprintf(message, args...)
	}
	return CloneError(ErrMalformedCommand, message, nil, nil)
}

func NewDuplicateRequestError(id uint32) *errors.Error {
	return CloneError(ErrDuplicateRequest, fmt.Sprintf("request %d is already pending", id), nil,
		map[string]any{"id": id})
}

func NewProcessNotFoundError(runID string) *errors.Error {
	return CloneError(ErrProcessNotFound,
		fmt.Sprintf("Workflow with the specified run id %s not found", runID), nil,
		map[string]any{"run_id": runID})
}

func NewHandlerNotFoundError(kind, name string) *errors.Error {
	return CloneError(ErrHandlerNotFound,
		fmt.Sprintf("Workflow %s handler %q not found", kind, name), nil,
		map[string]any{"kind": kind, "name": name})
}

func NewSequenceExhaustedError() *errors.Error {
	return ErrSequenceExhausted.Clone()
}

// HTTPStatus maps an error category onto the numeric code used in error
// responses.
func HTTPStatus(err error) uint32 {
	var ge *errors.Error
	if !stderrors.As(err, &ge) {
		return 500
	}
	if ge.Code > 0 {
		return uint32(ge.Code)
	}
	switch ge.Category {
	case errors.CategoryBadInput, errors.CategoryValidation:
		return 400
	case errors.CategoryNotFound:
		return 404
	case errors.CategoryConflict:
		return 409
	}
	return 500
}
