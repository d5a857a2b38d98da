package models

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFormat is returned when no extractor handles a source.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrNotFound is returned by stores for unknown ids.
	ErrNotFound = errors.New("not found")
)

// SourceError reports that the source file could not be opened or read at all.
type SourceError struct {
	Path string
	Err  error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("reading source %q: %v", e.Path, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// TemplateError reports a bank template that is not valid configuration.
type TemplateError struct {
	Name string
	Err  error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template %q: %v", e.Name, e.Err)
}

func (e *TemplateError) Unwrap() error { return e.Err }

// IsFatal reports whether err must abort processing of a statement.
func IsFatal(err error) bool {
	var se *SourceError
	var te *TemplateError
	return errors.As(err, &se) || errors.As(err, &te) || errors.Is(err, ErrUnsupportedFormat)
}
