// Package apperr defines the error taxonomy shared by the ingestion and retrieval pipeline.
//
// Every failure the pipeline surfaces falls into one of four kinds. Validation, quality and
// not-found failures are terminal; transient failures are retried by internal/retry up to a
// bounded attempt count.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/openai/openai-go"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind classifies an error for retry and reporting decisions.
type Kind string

const (
	KindUnknown    Kind = ""
	KindValidation Kind = "validation"
	KindTransient  Kind = "transient"
	KindQuality    Kind = "quality"
	KindNotFound   Kind = "not_found"
)

// Error is a classified error with an optional remediation hint for the end user.
type Error struct {
	Kind Kind
	Op   string
	Err  error
	Hint string
}

func (e *Error) Error() string {
	msg := string(e.Kind) + " error"
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Validation reports bad input shape, size or type. Never retried.
func Validation(op string, err error) error {
	return &Error{Kind: KindValidation, Op: op, Err: err}
}

// Transient reports a rate limit, timeout or 5xx from a collaborator.
func Transient(op string, err error) error {
	return &Error{Kind: KindTransient, Op: op, Err: err}
}

// Quality reports extracted or chunked content that is insufficient to continue.
func Quality(op string, err error, hint string) error {
	return &Error{Kind: KindQuality, Op: op, Err: err, Hint: hint}
}

// NotFound reports a missing source artifact.
func NotFound(op string, err error) error {
	return &Error{Kind: KindNotFound, Op: op, Err: err}
}

// WithHint attaches a remediation hint to err, classifying it as kind when err is not already classified.
func WithHint(err error, kind Kind, hint string) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return &Error{Kind: ae.Kind, Op: ae.Op, Err: ae.Err, Hint: hint}
	}
	return &Error{Kind: kind, Err: err, Hint: hint}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// HintOf returns the first non-empty remediation hint in err's chain.
func HintOf(err error) string {
	for err != nil {
		switch e := err.(type) {
		case *Error:
			if e.Hint != "" {
				return e.Hint
			}
		case *StageError:
			if e.Hint != "" {
				return e.Hint
			}
		}
		err = errors.Unwrap(err)
	}
	return ""
}

// IsRetryable reports whether err is worth another attempt.
//
// Classified errors decide by kind. Unclassified errors are inspected for OpenAI HTTP
// status codes, gRPC status codes (Qdrant) and network timeouts. Anything else is retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	switch KindOf(err) {
	case KindValidation, KindQuality, KindNotFound:
		return false
	case KindTransient:
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return retryableHTTPStatus(apiErr.StatusCode)
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		switch st.Code() {
		case codes.InvalidArgument, codes.NotFound, codes.PermissionDenied,
			codes.Unauthenticated, codes.AlreadyExists, codes.FailedPrecondition, codes.OutOfRange:
			return false
		}
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return true
}

func retryableHTTPStatus(code int) bool {
	switch {
	case code == 429:
		return true
	case code >= 500:
		return true
	case code == 408:
		return true
	}
	return false
}

// StageError is the single tagged error the processing orchestrator returns for a failed document.
type StageError struct {
	Stage string
	Err   error
	Hint  string
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// NewStageError wraps err with the failing stage, lifting any hint already present in the chain.
func NewStageError(stage string, err error) *StageError {
	return &StageError{Stage: stage, Err: err, Hint: HintOf(err)}
}
