package entity

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for domain layer operations.
var (
	// ErrNotFound indicates that a requested entity was not found
	ErrNotFound = errors.New("entity not found")

	// ErrAlreadyExists indicates that an entity with the same key is stored
	ErrAlreadyExists = errors.New("entity already exists")

	// ErrInvalidInput indicates that the provided input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrCancelled marks an archive item that was never started because
	// the archive run was cancelled (e.g. process shutdown).
	ErrCancelled = errors.New("ingestion cancelled before start")
)

// ValidationError represents a validation error with detailed field information.
// It implements the error interface and provides context about which field failed validation.
type ValidationError struct {
	Field   string
	Message string
}

// Error returns a formatted error message for the validation error.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// FetchError reports a transport level failure while retrieving content:
// network errors, non-success HTTP status, oversized or empty bodies.
type FetchError struct {
	URL        string
	StatusCode int // 0 when no HTTP response was received
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ListingFormatError means an archive page could not be recognized as a listing.
type ListingFormatError struct {
	URL    string
	Reason string
}

func (e *ListingFormatError) Error() string {
	return fmt.Sprintf("listing %s: unrecognized format: %s", e.URL, e.Reason)
}

// MalformedReportError describes the first offending record of a report.
// Position is the 1-based record index inside the data section, or 0 when
// the problem lies in the header or the framing. Line is the 1-based line
// number in the raw content.
type MalformedReportError struct {
	Filename string
	Position int
	Line     int
	Reason   string
}

func (e *MalformedReportError) Error() string {
	if e.Position > 0 {
		return fmt.Sprintf("malformed report %s: record %d (line %d): %s", e.Filename, e.Position, e.Line, e.Reason)
	}
	return fmt.Sprintf("malformed report %s: line %d: %s", e.Filename, e.Line, e.Reason)
}

// ConversionError is returned when a parsed report lacks the geospatial or
// temporal data a catalog item needs.
type ConversionError struct {
	ReportID string
	Reason   string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("convert report %s: %s", e.ReportID, e.Reason)
}

// StorageError wraps a catalog store failure.
type StorageError struct {
	Op     string
	ItemID string
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("catalog %s %s: %v", e.Op, e.ItemID, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ErrorKind is the stable, label-friendly name of an error category.
// It is used for metrics labels, log attributes and API responses.
type ErrorKind string

const (
	KindNone            ErrorKind = ""
	KindInvalidInput    ErrorKind = "invalid_input"
	KindFetch           ErrorKind = "fetch"
	KindListingFormat   ErrorKind = "listing_format"
	KindMalformedReport ErrorKind = "malformed_report"
	KindConversion      ErrorKind = "conversion"
	KindStorage         ErrorKind = "storage"
	KindCancelled       ErrorKind = "cancelled"
	KindUnknown         ErrorKind = "unknown"
)

// KindOf classifies err. Typed pipeline errors win over context errors so a
// fetch that timed out is still reported as a fetch failure.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	var (
		fetchErr     *FetchError
		listingErr   *ListingFormatError
		malformedErr *MalformedReportError
		convErr      *ConversionError
		storageErr   *StorageError
	)
	switch {
	case errors.As(err, &malformedErr):
		return KindMalformedReport
	case errors.As(err, &convErr):
		return KindConversion
	case errors.As(err, &storageErr):
		return KindStorage
	case errors.As(err, &listingErr):
		return KindListingFormat
	case errors.As(err, &fetchErr):
		return KindFetch
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrCancelled),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	default:
		return KindUnknown
	}
}

// PositionOf returns the offending record position carried by a
// MalformedReportError, or 0.
func PositionOf(err error) int {
	var malformedErr *MalformedReportError
	if errors.As(err, &malformedErr) {
		return malformedErr.Position
	}
	return 0
}
