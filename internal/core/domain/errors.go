package domain

import (
	"errors"
	"fmt"
)

// ScanFailure means the remote log query failed outright. No partial
// results accompany it.
type ScanFailure struct {
	Span  Span
	Cause error
}

func (e *ScanFailure) Error() string {
	return fmt.Sprintf("scan %s failed: %v", e.Span, e.Cause)
}

func (e *ScanFailure) Unwrap() error { return e.Cause }

// BatchFailure means the whole verification batch was rejected.
type BatchFailure struct {
	Size  int
	Cause error
}

func (e *BatchFailure) Error() string {
	return fmt.Sprintf("verification batch of %d failed: %v", e.Size, e.Cause)
}

func (e *BatchFailure) Unwrap() error { return e.Cause }

// ItemVerificationFailure is recorded on a single Outcome and never
// propagated past reconciliation.
type ItemVerificationFailure struct {
	ID     string
	Reason string
}

func (e *ItemVerificationFailure) Error() string {
	return fmt.Sprintf("verify token %s: %s", e.ID, e.Reason)
}

// IsScanFailure reports whether err wraps a ScanFailure.
func IsScanFailure(err error) bool {
	var sf *ScanFailure
	return errors.As(err, &sf)
}

// IsBatchFailure reports whether err wraps a BatchFailure.
func IsBatchFailure(err error) bool {
	var bf *BatchFailure
	return errors.As(err, &bf)
}
