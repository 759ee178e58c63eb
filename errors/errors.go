package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure at a pipeline stage boundary.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindUpstream   Kind = "upstream"
	KindTranscode  Kind = "transcode"
	KindInference  Kind = "inference"
	KindWrite      Kind = "write"
	KindInternal   Kind = "internal"
)

type AppError struct {
	Kind       Kind   `json:"kind"`
	Code       int    `json:"-"`
	Message    string `json:"error"`
	Op         string `json:"-"`
	Err        error  `json:"-"`
	Diagnostic string `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDiagnostic attaches captured tool output (ffmpeg stderr, yt-dlp output).
func (e *AppError) WithDiagnostic(diagnostic string) *AppError {
	e.Diagnostic = diagnostic
	return e
}

func newError(kind Kind, code int, op string, err error, message string) *AppError {
	return &AppError{
		Kind:    kind,
		Code:    code,
		Message: message,
		Op:      op,
		Err:     err,
	}
}

func InvalidInput(op string, err error, message string) *AppError {
	return newError(KindValidation, http.StatusBadRequest, op, err, message)
}

func NotFound(op string, err error, message string) *AppError {
	return newError(KindNotFound, http.StatusNotFound, op, err, message)
}

func Conflict(op string, err error, message string) *AppError {
	return newError(KindConflict, http.StatusConflict, op, err, message)
}

func Upstream(op string, err error, message string) *AppError {
	return newError(KindUpstream, http.StatusBadGateway, op, err, message)
}

func Transcode(op string, err error, message string) *AppError {
	return newError(KindTranscode, http.StatusInternalServerError, op, err, message)
}

func Inference(op string, err error, message string) *AppError {
	return newError(KindInference, http.StatusInternalServerError, op, err, message)
}

func Write(op string, err error, message string) *AppError {
	return newError(KindWrite, http.StatusInternalServerError, op, err, message)
}

func Internal(op string, err error, message string) *AppError {
	return newError(KindInternal, http.StatusInternalServerError, op, err, message)
}

// As reports the outermost AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf returns KindInternal for errors that were never classified.
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok && appErr.Kind != "" {
		return appErr.Kind
	}
	return KindInternal
}

func HTTPStatus(err error) int {
	if appErr, ok := As(err); ok && appErr.Code != 0 {
		return appErr.Code
	}
	return http.StatusInternalServerError
}

// Is is re-exported so callers importing this package do not also need the standard one.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}
