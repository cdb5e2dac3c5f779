package catalog

import "errors"

// Catalog error definitions. Catalog problems are detected eagerly at
// startup; a broken catalog is fatal rather than discovered mid-transmission.
var (
	// ErrSignalNotFound indicates a lookup for a name the catalog doesn't contain.
	ErrSignalNotFound = errors.New("catalog: signal not found")

	// ErrEmptyCatalog indicates the catalog file contained no signals.
	ErrEmptyCatalog = errors.New("catalog: no signals defined")

	// ErrInvalidSignal indicates a signal definition failed validation.
	ErrInvalidSignal = errors.New("catalog: invalid signal definition")

	// ErrMissingRequired indicates a signal name the fan requires is absent.
	ErrMissingRequired = errors.New("catalog: required signal missing")
)
