package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrUnknownCategory signals a category name with no configuration.
	ErrUnknownCategory = errors.New("unknown category")
	// ErrInvalidCategory signals a label that is not a valid legal domain.
	ErrInvalidCategory = errors.New("invalid category")
	// ErrFetch signals a document fetch failure (network, status, timeout).
	ErrFetch = errors.New("fetch failed")
	// ErrParse signals a malformed document structure.
	ErrParse = errors.New("document parse failed")
	// ErrEmbeddingProvider signals an embedding provider failure.
	ErrEmbeddingProvider = errors.New("embedding provider error")
	// ErrValidationFailed signals a post-run structural sanity check failure.
	ErrValidationFailed = errors.New("pipeline validation failed")
)

// InvalidCategoryError wraps ErrInvalidCategory with the rejected label
// and the categories that are currently known.
type InvalidCategoryError struct {
	Label string
	Known []string
}

func (e *InvalidCategoryError) Error() string {
	return fmt.Sprintf("%q is not a valid legal domain; known categories: %s",
		e.Label, strings.Join(e.Known, ", "))
}

func (e *InvalidCategoryError) Unwrap() error { return ErrInvalidCategory }

// NewInvalidCategory creates an invalid category error listing the known categories.
func NewInvalidCategory(label string, known []string) error {
	return &InvalidCategoryError{Label: label, Known: known}
}
