package fxfolio

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoData is returned when a provider answered with no usable observation.
	ErrNoData = errors.New("no data")
	// ErrInsufficientData is returned when a series has fewer than two valid closes.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrNoValidPositions is returned when no position survived the price fetch.
	ErrNoValidPositions = errors.New("no valid positions left to analyze")
)

// InputErrorKind classifies fatal input errors.
type InputErrorKind int

const (
	FileNotFound InputErrorKind = iota
	Unreadable
	MissingColumns
	NoValidRows
)

func (k InputErrorKind) String() string {
	switch k {
	case FileNotFound:
		return "file not found"
	case Unreadable:
		return "unreadable"
	case MissingColumns:
		return "missing columns"
	case NoValidRows:
		return "no valid rows"
	default:
		return "unknown"
	}
}

// InputError is a fatal error about an input table.
type InputError struct {
	Kind      InputErrorKind
	Path      string
	Missing   []string // for MissingColumns
	Available []string // for MissingColumns
	Dropped   int      // for NoValidRows
	Err       error
}

func (e *InputError) Error() string {
	switch e.Kind {
	case MissingColumns:
		return fmt.Sprintf("%s: missing required columns %s (available: %s)", e.Path, quoteAll(e.Missing), quoteAll(e.Available))
	case NoValidRows:
		return fmt.Sprintf("%s: no valid rows (%d dropped)", e.Path, e.Dropped)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Kind)
}

func (e *InputError) Unwrap() error { return e.Err }

// IsInputError reports whether err is an InputError of the given kind.
func IsInputError(err error, kind InputErrorKind) bool {
	var ie *InputError
	return errors.As(err, &ie) && ie.Kind == kind
}

func quoteAll(names []string) string {
	q := make([]string, len(names))
	for i, n := range names {
		q[i] = fmt.Sprintf("%q", n)
	}
	return "[" + strings.Join(q, ", ") + "]"
}
