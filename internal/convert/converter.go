// Package convert invokes the external conversion capability and maps its
// failures onto a small taxonomy. The converter is polymorphic over input
// formats; nothing in this package branches on file type.
package convert

import (
	"context"
	"errors"
	"fmt"
)

// FailureKind classifies a conversion failure.
type FailureKind string

const (
	// UnsupportedFormat means the converter recognized the input but
	// cannot handle its format.
	UnsupportedFormat FailureKind = "UNSUPPORTED_FORMAT"
	// MissingSystemDependency means an OS-level tool the converter relies
	// on (or the converter binary itself) is not installed.
	MissingSystemDependency FailureKind = "MISSING_SYSTEM_DEPENDENCY"
	// ConversionFailed is the default bucket for every other failure,
	// including corrupted input.
	ConversionFailed FailureKind = "CONVERSION_FAILED"
)

// Error is a classified conversion failure.
type Error struct {
	Kind   FailureKind
	Path   string
	Stderr string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Converter turns a staged document into Markdown text. Implementations
// may block for the duration of the call; cancellation comes only from ctx.
type Converter interface {
	Convert(ctx context.Context, path string) (string, error)
}

// Classify maps an arbitrary conversion error onto the failure taxonomy.
// Unclassified errors land in the ConversionFailed bucket.
func Classify(err error) FailureKind {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Kind
	}
	return ConversionFailed
}
