package scraper

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedDate is matched by ParseErrors for unparseable date cells
	ErrMalformedDate = errors.New("malformed date")
	// ErrMalformedConsumption is matched by ParseErrors for unparseable consumption cells
	ErrMalformedConsumption = errors.New("malformed consumption")
	// ErrInvalidRange is returned when the start date is after the end date
	ErrInvalidRange = errors.New("date range start is after its end")
)

// AuthError represents a login the portal did not accept
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("login failed (status %d): %s", e.StatusCode, e.Body)
}

// NavigationError means an expected element was missing from an intermediate page
type NavigationError struct {
	Page    string
	Element string
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("%s not found on %s (portal layout changed?)", e.Element, e.Page)
}

// StatusError is returned for navigation responses with an HTTP error status
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.URL, e.StatusCode)
}

// ParseErrorKind says which cell of a row failed to parse
type ParseErrorKind int

const (
	MalformedDate ParseErrorKind = iota
	MalformedConsumption
)

func (k ParseErrorKind) String() string {
	switch k {
	case MalformedDate:
		return "malformed date"
	case MalformedConsumption:
		return "malformed consumption"
	default:
		return fmt.Sprintf("ParseErrorKind(%d)", int(k))
	}
}

// ParseError describes a table row whose text does not have the expected shape
type ParseError struct {
	Kind ParseErrorKind
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %q: %v", e.Kind, e.Text, e.Err)
	}
	return fmt.Sprintf("%s %q", e.Kind, e.Text)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the ErrMalformed* sentinels
func (e *ParseError) Is(target error) bool {
	switch target {
	case ErrMalformedDate:
		return e.Kind == MalformedDate
	case ErrMalformedConsumption:
		return e.Kind == MalformedConsumption
	}
	return false
}

// FetchError wraps a failure to read one month of consumption
type FetchError struct {
	Period Period
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching consumption for %s: %v", e.Period, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
