package models

import (
	"errors"
	"fmt"
)

// Error codes used in API responses and internal error handling.
const (
	ErrCodeFetchTimeout     = "FETCH_TIMEOUT"
	ErrCodeFetchFailed      = "FETCH_FAILED"
	ErrCodeFetchBlocked     = "FETCH_BLOCKED"
	ErrCodeBrowserCrash     = "BROWSER_CRASH"
	ErrCodeExtractionEmpty  = "EXTRACTION_EMPTY"
	ErrCodeAggregationEmpty = "AGGREGATION_INPUT_EMPTY"
	ErrCodeRunCanceled      = "RUN_CANCELED"
	ErrCodeInvalidInput     = "INVALID_INPUT"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeStorage          = "STORAGE_FAILURE"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeInternal         = "INTERNAL_ERROR"

	// ErrCodeScorerUnavailable is recovered inside a run by falling back
	// to the heuristic scorer. It never reaches API callers on its own.
	ErrCodeScorerUnavailable = "SCORER_UNAVAILABLE"

	// LLM transport codes, carried as the cause of SCORER_UNAVAILABLE.
	ErrCodeLLMFailure     = "LLM_FAILURE"
	ErrCodeLLMAuthFailure = "LLM_AUTH_FAILURE"
	ErrCodeLLMRateLimited = "LLM_RATE_LIMITED"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AnalysisError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type AnalysisError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *AnalysisError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// NewAnalysisError creates a new AnalysisError.
func NewAnalysisError(code, message string, err error) *AnalysisError {
	return &AnalysisError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *AnalysisError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// CodeOf returns the code of the outermost AnalysisError in err's chain,
// or "" when there is none.
func CodeOf(err error) string {
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// AsAnalysisError converts any error into an *AnalysisError, tagging
// unknown errors as INTERNAL_ERROR.
func AsAnalysisError(err error) *AnalysisError {
	if err == nil {
		return nil
	}
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae
	}
	return NewAnalysisError(ErrCodeInternal, err.Error(), err)
}
