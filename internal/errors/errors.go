// Package errors defines the typed error taxonomy of the factor pipeline.
// Callers branch on category, never on message text: integrity faults abort
// one unit, insufficient data marks a result unavailable, storage faults
// propagate, configuration faults fail fast at construction.
package errors

import (
	stderrors "errors"
	"fmt"
)

// DataIntegrityError reports a malformed panel: duplicate (stock, date)
// keys, missing columns, or rows inconsistent with their factor name.
// The affected unit is aborted; sibling units are unaffected.
type DataIntegrityError struct {
	Op      string      `json:"op"`
	Key     string      `json:"key,omitempty"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

func (e *DataIntegrityError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s: %s (key %s)", e.Op, e.Message, e.Key)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// InsufficientDataError marks an aggregate as unavailable because the
// sample is below its statistical minimum. This is the normal edge path,
// not a failure: edge dates, short windows and empty joins all land here.
type InsufficientDataError struct {
	Op   string `json:"op"`
	Need int    `json:"need"`
	Got  int    `json:"got"`
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: insufficient data: need %d observations, got %d", e.Op, e.Need, e.Got)
}

// StorageError wraps a Panel Store read or write failure. It propagates to
// the batch caller; results already persisted stay in place.
type StorageError struct {
	Op    string `json:"op"`
	Table string `json:"table,omitempty"`
	Err   error  `json:"-"`
}

func (e *StorageError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("%s: table %s: %v", e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ConfigurationError reports an unknown or invalid construction-time
// parameter. Construction fails; nothing is silently ignored.
type ConfigurationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsDataIntegrity reports whether err carries a DataIntegrityError.
func IsDataIntegrity(err error) bool {
	var e *DataIntegrityError
	return stderrors.As(err, &e)
}

// IsInsufficientData reports whether err carries an InsufficientDataError.
func IsInsufficientData(err error) bool {
	var e *InsufficientDataError
	return stderrors.As(err, &e)
}

// IsStorage reports whether err carries a StorageError.
func IsStorage(err error) bool {
	var e *StorageError
	return stderrors.As(err, &e)
}

// IsConfiguration reports whether err carries a ConfigurationError.
func IsConfiguration(err error) bool {
	var e *ConfigurationError
	return stderrors.As(err, &e)
}
