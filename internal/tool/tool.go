// Package tool defines the tool model and registry. A tool is a named
// function with typed, ordered parameters; the registry owns the set of
// callable tools, executes them by name, and renders the function-calling
// schema handed to the model.
package tool

import "context"

// ParamType enumerates the JSON types a parameter may declare.
type ParamType string

// ParamType values.
const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeObject  ParamType = "object"
	TypeArray   ParamType = "array"
)

// Param describes one named input to a tool. Declaration order is
// significant: executors receive arguments positionally in this order.
type Param struct {
	Name        string
	Type        ParamType
	Description string

	// Optional marks a parameter that may be omitted; the zero value
	// means required.
	Optional bool
}

// ExecFunc runs a tool. Arguments arrive positionally in parameter
// declaration order; any argument absent from the call is nil.
type ExecFunc func(ctx context.Context, args ...any) (string, error)

// Definition is a registrable tool: registry key, description shown to the
// model, ordered parameters, and the executor.
type Definition struct {
	Name        string
	Description string
	Params      []Param
	Exec        ExecFunc
}
