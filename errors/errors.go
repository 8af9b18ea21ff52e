// Package errors provides error types and handling for s3opt operations.
package errors

import (
	"errors"
	"fmt"
)

// Error represents an operation error with context about what failed.
// It wraps the underlying AWS SDK or subprocess error with the operation,
// bucket and key it happened on.
type Error struct {
	// Op is the operation that failed (e.g., "head", "read", "rewrite")
	Op string

	// Bucket is the S3 bucket name (if applicable)
	Bucket string

	// Key is the S3 object key (if applicable)
	Key string

	// Err is the underlying error
	Err error
}

// Error implements the error interface by providing a formatted error message.
func (e *Error) Error() string {
	if e.Bucket != "" && e.Key != "" {
		return fmt.Sprintf("s3opt.%s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
	}
	if e.Bucket != "" {
		return fmt.Sprintf("s3opt.%s bucket %s: %v", e.Op, e.Bucket, e.Err)
	}
	if e.Key != "" {
		return fmt.Sprintf("s3opt.%s object %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("s3opt.%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error chaining support.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithBucket adds bucket context to an existing error.
func (e *Error) WithBucket(bucket string) *Error {
	e.Bucket = bucket
	return e
}

// WithKey adds object key context to an existing error.
func (e *Error) WithKey(key string) *Error {
	e.Key = key
	return e
}

// WithMessage wraps the underlying error with a custom message.
func (e *Error) WithMessage(message string) *Error {
	e.Err = fmt.Errorf("%s: %w", message, e.Err)
	return e
}

// NewError creates a new Error with the given operation and underlying error.
func NewError(op string, err error) *Error {
	return &Error{
		Op:  op,
		Err: err,
	}
}

// NewObjectError creates a new Error with bucket and key context.
func NewObjectError(op, bucket, key string, err error) *Error {
	return &Error{
		Op:     op,
		Bucket: bucket,
		Key:    key,
		Err:    err,
	}
}

// Sentinel errors for common failures.
// These can be used with errors.Is() for error checking.
var (
	// ErrObjectNotFound indicates that the requested object does not exist
	ErrObjectNotFound = errors.New("s3opt: object not found")

	// ErrBucketNotFound indicates that the requested bucket does not exist
	ErrBucketNotFound = errors.New("s3opt: bucket not found")

	// ErrAccessDenied indicates that access to the resource is denied
	ErrAccessDenied = errors.New("s3opt: access denied")

	// ErrInvalidInput indicates that the provided input is invalid
	ErrInvalidInput = errors.New("s3opt: invalid input")

	// ErrInvalidConfig indicates an invalid flag or threshold combination
	ErrInvalidConfig = errors.New("s3opt: invalid configuration")

	// ErrTransformFailed indicates that an external optimiser invocation failed
	ErrTransformFailed = errors.New("s3opt: transform failed")
)

// IsObjectNotFound checks if an error indicates that an object was not found.
// This is a convenience function that handles both sentinel errors and wrapped errors.
func IsObjectNotFound(err error) bool {
	return errors.Is(err, ErrObjectNotFound)
}

// IsAccessDenied checks if an error indicates access was denied.
// This is a convenience function that handles both sentinel errors and wrapped errors.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// IsInvalidConfig checks if an error indicates an invalid configuration.
// This is a convenience function that handles both sentinel errors and wrapped errors.
func IsInvalidConfig(err error) bool {
	return errors.Is(err, ErrInvalidConfig)
}

// IsTransformFailed checks if an error indicates a failed external transform.
// This is a convenience function that handles both sentinel errors and wrapped errors.
func IsTransformFailed(err error) bool {
	return errors.Is(err, ErrTransformFailed)
}
