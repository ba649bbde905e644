package tool

import "errors"

var (
	// ErrToolNotFound is returned when a tool is not found in the registry.
	// It is the only failure Execute lets past the registry boundary.
	ErrToolNotFound = errors.New("tool not found")

	// ErrEmptyToolName is returned when registering a tool with an empty name.
	ErrEmptyToolName = errors.New("tool name must not be empty")

	// ErrNilExecutor is returned when registering a tool without an executor.
	ErrNilExecutor = errors.New("tool executor must not be nil")
)
