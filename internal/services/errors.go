package services

import "errors"

var (
	// ErrCatalogNotFound is returned when the catalog file does not exist
	ErrCatalogNotFound = errors.New("catalog not found")

	// ErrServiceUnavailable is returned when a dependency is not attached
	ErrServiceUnavailable = errors.New("service temporarily unavailable")
)
