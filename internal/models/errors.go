package models

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of errors
type ErrorType int

const (
	ErrUnsupportedFormat ErrorType = iota
	ErrMalformedPackage
	ErrBuildFailed
	ErrFetchFailed
	ErrOversizedArtifact
)

// String returns the string representation of ErrorType
func (e ErrorType) String() string {
	switch e {
	case ErrUnsupportedFormat:
		return "UnsupportedFormat"
	case ErrMalformedPackage:
		return "MalformedPackage"
	case ErrBuildFailed:
		return "BuildFailed"
	case ErrFetchFailed:
		return "FetchFailed"
	case ErrOversizedArtifact:
		return "OversizedArtifact"
	default:
		return "Unknown"
	}
}

// ConvError represents an error during package conversion or resolution
type ConvError struct {
	Type    ErrorType
	Package string
	Err     error
}

// Error implements the error interface
func (e *ConvError) Error() string {
	if e.Package != "" {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Package, e.Err)
	}
	return fmt.Sprintf("[%s] %v", e.Type, e.Err)
}

// Unwrap returns the wrapped error
func (e *ConvError) Unwrap() error {
	return e.Err
}

// NewError wraps err with a type and the package it concerns
func NewError(t ErrorType, pkg string, err error) *ConvError {
	return &ConvError{Type: t, Package: pkg, Err: err}
}

// Errorf builds a typed error from a format string
func Errorf(t ErrorType, pkg, format string, args ...interface{}) *ConvError {
	return &ConvError{Type: t, Package: pkg, Err: fmt.Errorf(format, args...)}
}

// IsType reports whether err is (or wraps) a ConvError of the given type
func IsType(err error, t ErrorType) bool {
	var ce *ConvError
	if errors.As(err, &ce) {
		return ce.Type == t
	}
	return false
}
