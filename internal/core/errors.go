package core

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatValidation ErrorCategory = "validation" // Invalid input or graph structure
	ErrCatExecution  ErrorCategory = "execution"  // Tool invocation failure
	ErrCatTimeout    ErrorCategory = "timeout"    // Operation timed out
	ErrCatRateLimit  ErrorCategory = "rate_limit" // Tool rate limited
	ErrCatNotFound   ErrorCategory = "not_found"  // Resource not found
	ErrCatCancelled  ErrorCategory = "cancelled"  // Caller cancelled the run
	ErrCatInternal   ErrorCategory = "internal"   // Unexpected internal error
)

// DomainError represents a structured error from the domain layer.
type DomainError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Retryable bool
	Cause     error
	Details   map[string]interface{}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetail adds contextual information.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ErrValidation creates a validation error.
func ErrValidation(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatValidation,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrExecution creates an execution error.
func ErrExecution(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatExecution,
		Code:      code,
		Message:   message,
		Retryable: true,
	}
}

// ErrTimeout creates a timeout error.
func ErrTimeout(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatTimeout,
		Code:      "TIMEOUT",
		Message:   message,
		Retryable: true,
	}
}

// ErrRateLimit creates a rate limit error.
func ErrRateLimit(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatRateLimit,
		Code:      "RATE_LIMITED",
		Message:   message,
		Retryable: true,
	}
}

// ErrNotFound creates a not found error.
func ErrNotFound(resource, id string) *DomainError {
	return &DomainError{
		Category:  ErrCatNotFound,
		Code:      "NOT_FOUND",
		Message:   fmt.Sprintf("%s not found: %s", resource, id),
		Retryable: false,
	}
}

// ErrRunMissing creates the error for a run id absent from the run store.
func ErrRunMissing(runID string) *DomainError {
	return &DomainError{
		Category: ErrCatNotFound,
		Code:     CodeRunNotFound,
		Message:  fmt.Sprintf("run not found: %s", runID),
	}
}

// ErrCancelled creates an error for a run stopped by its caller.
func ErrCancelled(cause error) *DomainError {
	return &DomainError{
		Category:  ErrCatCancelled,
		Code:      CodeRunCancelled,
		Message:   "run cancelled before all waves completed",
		Retryable: false,
		Cause:     cause,
	}
}

// ErrUnknownNodeRef creates the error for an edge pointing at an undeclared node.
func ErrUnknownNodeRef(edge Edge, missing NodeID) *DomainError {
	return ErrValidation(CodeUnknownNode,
		fmt.Sprintf("edge %s -> %s references unknown node %q", edge.From, edge.To, missing)).
		WithDetail("node_id", string(missing))
}

// ErrCycle creates the error for a graph that cannot be fully ordered.
func ErrCycle(node NodeID) *DomainError {
	return ErrValidation(CodeCycleDetected,
		fmt.Sprintf("graph contains a cycle through node %q", node)).
		WithDetail("node_id", string(node))
}

// ErrMissingTool creates the error for a node kind absent from the registry.
func ErrMissingTool(kind string) *DomainError {
	return &DomainError{
		Category:  ErrCatNotFound,
		Code:      CodeToolNotFound,
		Message:   fmt.Sprintf("no tool registered for kind %q", kind),
		Retryable: false,
		Details:   map[string]interface{}{"kind": kind},
	}
}

// ErrToolFailed wraps an error returned by a tool invocation.
func ErrToolFailed(node NodeID, cause error) *DomainError {
	return (&DomainError{
		Category:  ErrCatExecution,
		Code:      CodeToolFailed,
		Message:   fmt.Sprintf("tool for node %q failed", node),
		Retryable: IsRetryable(cause),
	}).WithCause(cause).WithDetail("node_id", string(node))
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Retryable
	}
	return false
}

// GetCategory extracts the error category.
func GetCategory(err error) ErrorCategory {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Category
	}
	return ErrCatInternal
}

// IsCategory checks if an error belongs to a category.
func IsCategory(err error, cat ErrorCategory) bool {
	return GetCategory(err) == cat
}

// GetCode extracts the error code, or "" for non-domain errors.
func GetCode(err error) string {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Code
	}
	return ""
}

// Predefined error codes
const (
	// Graph structure
	CodeUnknownNode       = "UNKNOWN_NODE"
	CodeCycleDetected     = "CYCLE_DETECTED"
	CodeDuplicateNode     = "DUPLICATE_NODE"
	CodeInvalidNode       = "INVALID_NODE"
	CodeEmptyGraph        = "EMPTY_GRAPH"
	CodeInvalidOutputNode = "INVALID_OUTPUT_NODE"
	CodeInvalidTask       = "INVALID_TASK"

	// Execution
	CodeToolNotFound = "TOOL_NOT_FOUND"
	CodeToolFailed   = "TOOL_FAILED"
	CodeRunCancelled = "RUN_CANCELLED"

	// Storage
	CodeRunNotFound = "RUN_NOT_FOUND"
)

// Sentinels for errors.Is matching against graph and dispatch failures.
var (
	ErrUnknownNode   = &DomainError{Category: ErrCatValidation, Code: CodeUnknownNode}
	ErrCycleDetected = &DomainError{Category: ErrCatValidation, Code: CodeCycleDetected}
	ErrToolNotFound  = &DomainError{Category: ErrCatNotFound, Code: CodeToolNotFound}
	ErrRunNotFound   = &DomainError{Category: ErrCatNotFound, Code: CodeRunNotFound}
)
