// Package errmodel is the compact categorized error used across reviewbench.
package errmodel

import (
	"encoding/json"
	"errors"
	"strings"
)

// Category values for compact errors.
const (
	CategoryValidation = "validation"
	CategoryStorage    = "storage"
	CategoryJudge      = "judge"
	CategorySystem     = "system"
)

// Common codes.
const (
	CodeInvalidArgument = "invalid_argument"
	CodeStorageFailure  = "storage_failure"
	CodeJudgeFailure    = "judge_failure"
	CodeGeneration      = "generation_failure"
	CodeInternal        = "internal"
)

// Error is the compact error payload. It implements the error interface and
// keeps the underlying cause reachable through errors.Is and errors.As.
type Error struct {
	Category string         `json:"category"`
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Context  map[string]any `json:"context,omitempty"`

	cause error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// New constructs a new compact error.
func New(category, code, message string, ctx map[string]any, cause error) *Error {
	ce := &Error{Category: category, Code: code, Message: truncate(message, 512), cause: cause}
	if len(ctx) > 0 {
		ce.Context = truncateContext(ctx)
	}
	return ce
}

// From converts any error into a compact Error. If err already wraps an
// *Error, that one is returned.
func From(err error) *Error {
	var ce *Error
	if err == nil {
		return nil
	}
	if errors.As(err, &ce) {
		return ce
	}
	return &Error{Category: CategorySystem, Code: CodeInternal, Message: truncate(err.Error(), 512), cause: err}
}

// InvalidArgument reports a caller supplied value outside its domain.
func InvalidArgument(message string, ctx map[string]any) *Error {
	return New(CategoryValidation, CodeInvalidArgument, message, ctx, nil)
}

// Storage wraps an engine error raised by op.
func Storage(op string, cause error) *Error {
	return New(CategoryStorage, CodeStorageFailure, op, nil, cause)
}

// Judge wraps a failure of the external judge.
func Judge(message string, ctx map[string]any, cause error) *Error {
	return New(CategoryJudge, CodeJudgeFailure, message, ctx, cause)
}

// Generation wraps a failure of the tool under evaluation.
func Generation(message string, ctx map[string]any, cause error) *Error {
	return New(CategorySystem, CodeGeneration, message, ctx, cause)
}

func System(code, message string, ctx map[string]any, cause error) *Error {
	return New(CategorySystem, code, message, ctx, cause)
}

// IsCategory checks if err belongs to a specific category.
func IsCategory(err error, category string) bool {
	ce := From(err)
	return ce != nil && strings.EqualFold(ce.Category, category)
}

// IsInvalidArgument reports whether err is a validation failure.
func IsInvalidArgument(err error) bool {
	return IsCategory(err, CategoryValidation)
}

// truncate trims a string to max characters.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

// truncateContext trims long string values in the context map.
func truncateContext(ctx map[string]any) map[string]any {
	out := make(map[string]any, len(ctx))
	for k, v := range ctx {
		switch t := v.(type) {
		case string:
			out[k] = truncate(t, 256)
		default:
			b, err := json.Marshal(t)
			if err == nil && len(b) > 256 {
				out[k] = truncate(string(b), 256)
			} else {
				out[k] = t
			}
		}
	}
	return out
}
