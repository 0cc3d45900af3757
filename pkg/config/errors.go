package config

import (
	"errors"
	"fmt"
)

var (
	// ErrLLMProviderNotFound is returned when a provider name is not registered.
	ErrLLMProviderNotFound = errors.New("llm provider not found")

	// ErrInvalidConfig is the base error for validation failures.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// LoadError wraps a failure to load one configuration file.
type LoadError struct {
	File string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.File, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// NewLoadError creates a LoadError for the given file.
func NewLoadError(file string, err error) error {
	return &LoadError{File: file, Err: err}
}
