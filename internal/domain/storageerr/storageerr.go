// Package storageerr defines the error taxonomy for the offline storage engine.
package storageerr

import (
	"errors"
	"fmt"
)

// Code classifies a storage failure.
type Code string

const (
	CodePermissionDenied Code = "PERMISSION_DENIED" // substrate probe or declared permission failed
	CodeQuotaExceeded    Code = "QUOTA_EXCEEDED"    // user-configurable soft limit reached
	CodeCompression      Code = "COMPRESSION"       // codec failure, absorbed by callers
	CodeCorruptMetadata  Code = "CORRUPT_METADATA"  // unparsable stored side-record
	CodeNotInitialized   Code = "NOT_INITIALIZED"   // manager used before initialization completed
)

// StorageError is a classified storage failure.
type StorageError struct {
	Code    Code
	Message string
	Err     error
}

func (e *StorageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StorageError) Unwrap() error { return e.Err }

// NewPermissionDenied marks a substrate as unusable due to missing or
// unverifiable filesystem permission.
func NewPermissionDenied(msg string, err error) *StorageError {
	return &StorageError{Code: CodePermissionDenied, Message: msg, Err: err}
}

// NewQuotaExceeded is surfaced to the caller as a distinct, user-actionable
// failure; it is never raised by silent adapter-internal eviction.
func NewQuotaExceeded(usedBytes, limitBytes int64) *StorageError {
	return &StorageError{
		Code:    CodeQuotaExceeded,
		Message: fmt.Sprintf("storage limit reached: %d of %d bytes used; raise the limit or delete old tours", usedBytes, limitBytes),
	}
}

// NewCompression wraps a codec failure. Save paths catch it and proceed with
// the uncompressed payload.
func NewCompression(err error) *StorageError {
	return &StorageError{Code: CodeCompression, Message: "payload compression failed", Err: err}
}

// NewCorruptMetadata marks a stored side-record as unparsable. The record is
// treated as absent and becomes eligible for cleanup.
func NewCorruptMetadata(key string, err error) *StorageError {
	return &StorageError{Code: CodeCorruptMetadata, Message: fmt.Sprintf("unparsable metadata record %q", key), Err: err}
}

// NewNotInitialized reports use of the manager before initialization.
func NewNotInitialized() *StorageError {
	return &StorageError{Code: CodeNotInitialized, Message: "storage adapter not initialized"}
}

// HasCode reports whether err is a StorageError carrying the given code.
func HasCode(err error, code Code) bool {
	var se *StorageError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsQuotaExceeded reports whether err is a quota failure.
func IsQuotaExceeded(err error) bool { return HasCode(err, CodeQuotaExceeded) }

// IsPermissionDenied reports whether err is a permission failure.
func IsPermissionDenied(err error) bool { return HasCode(err, CodePermissionDenied) }
