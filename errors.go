package main

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// FailureKind tags the reason a single work item failed
type FailureKind string

const (
	TransportFailure  FailureKind = "transport"
	ValidationFailure FailureKind = "validation"
	UpstreamFailure   FailureKind = "upstream"
)

// ItemFailure is an expected, per-item failure. It is recorded to the error
// store and never aborts a batch.
type ItemFailure struct {
	Kind FailureKind
	Err  error
}

func (f *ItemFailure) Error() string {
	return fmt.Sprintf("%s failure: %v", f.Kind, f.Err)
}

func (f *ItemFailure) Unwrap() error {
	return f.Err
}

func transportFailure(err error) *ItemFailure {
	return &ItemFailure{Kind: TransportFailure, Err: err}
}

func validationFailure(err error) *ItemFailure {
	return &ItemFailure{Kind: ValidationFailure, Err: err}
}

func upstreamFailure(err error) *ItemFailure {
	return &ItemFailure{Kind: UpstreamFailure, Err: err}
}

// HTTPError represents an HTTP error with status code
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for %s", e.StatusCode, e.URL)
}

// MissingFieldsError lists required fields absent from a result
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

// PersistenceError wraps a failed write to a ledger or store. It is fatal to
// the run.
type PersistenceError struct {
	Stage string
	ID    string
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: persisting %s: %v", e.Stage, e.ID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Classify converts a transform error into a tagged failure. Pre-tagged
// failures keep their kind; network and HTTP status errors become transport
// failures; anything else is an upstream failure.
func Classify(err error) *ItemFailure {
	if err == nil {
		return nil
	}

	var failure *ItemFailure
	if errors.As(err, &failure) {
		return failure
	}

	var httpErr *HTTPError
	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &httpErr) || errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return transportFailure(err)
	}

	return upstreamFailure(err)
}

// requireFields returns a validation failure naming every empty field
func requireFields(fields ...field) *ItemFailure {
	var missing []string
	for _, f := range fields {
		if !f.present {
			missing = append(missing, f.name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return validationFailure(&MissingFieldsError{Fields: missing})
}

type field struct {
	name    string
	present bool
}

func textField(name, value string) field {
	return field{name: name, present: strings.TrimSpace(value) != ""}
}

func listField(name string, values []string) field {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return field{name: name, present: true}
		}
	}
	return field{name: name}
}
