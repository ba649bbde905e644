package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func echoTool(name string, params ...Param) Definition {
	return Definition{
		Name:   name,
		Params: params,
		Exec: func(_ context.Context, args ...any) (string, error) {
			return fmt.Sprintf("%v", args), nil
		},
	}
}

func TestRegistryRegister_EmptyName(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	err := r.Register(Definition{Name: "  ", Exec: func(context.Context, ...any) (string, error) { return "", nil }})
	if !errors.Is(err, ErrEmptyToolName) {
		t.Fatalf("expected ErrEmptyToolName, got %v", err)
	}
}

func TestRegistryRegister_NilExecutor(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	err := r.Register(Definition{Name: "broken"})
	if !errors.Is(err, ErrNilExecutor) {
		t.Fatalf("expected ErrNilExecutor, got %v", err)
	}
}

func TestRegistrySchemas_RegistrationOrder(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := r.Register(echoTool(name)); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	schemas := r.Schemas()
	if len(schemas) != 3 {
		t.Fatalf("got %d schemas, want 3", len(schemas))
	}
	want := []string{"zeta", "alpha", "mid"}
	for i, s := range schemas {
		if s.Name != want[i] {
			t.Errorf("schemas[%d].Name = %q, want %q", i, s.Name, want[i])
		}
	}
}

func TestRegistryRegister_ReplaceKeepsOrderSlot(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if err := r.Register(echoTool("first")); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(echoTool("second")); err != nil {
		t.Fatal(err)
	}

	replacement := Definition{
		Name:        "first",
		Description: "replaced",
		Exec:        func(context.Context, ...any) (string, error) { return "new", nil },
	}
	if err := r.Register(replacement); err != nil {
		t.Fatalf("re-register: %v", err)
	}

	schemas := r.Schemas()
	if len(schemas) != 2 {
		t.Fatalf("got %d schemas after replace, want 2", len(schemas))
	}
	if schemas[0].Name != "first" || schemas[0].Description != "replaced" {
		t.Errorf("schemas[0] = %q (%q), want replaced entry in original slot",
			schemas[0].Name, schemas[0].Description)
	}

	out, err := r.Execute(context.Background(), "first", nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out != "new" {
		t.Errorf("execute after replace = %q, want %q", out, "new")
	}
}

func TestRegistrySchemas_ParameterShape(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	def := echoTool("get_weather",
		Param{Name: "city", Type: TypeString, Description: "city name"},
		Param{Name: "units", Type: TypeString, Description: "metric or imperial", Optional: true},
	)
	def.Description = "Look up the weather"
	if err := r.Register(def); err != nil {
		t.Fatal(err)
	}

	schemas := r.Schemas()
	if len(schemas) != 1 {
		t.Fatalf("got %d schemas, want 1", len(schemas))
	}

	var parsed struct {
		Type       string `json:"type"`
		Properties map[string]struct {
			Type        string `json:"type"`
			Description string `json:"description"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(schemas[0].Parameters, &parsed); err != nil {
		t.Fatalf("unmarshal parameters: %v", err)
	}

	if parsed.Type != "object" {
		t.Errorf("type = %q, want object", parsed.Type)
	}
	if got := parsed.Properties["city"].Type; got != "string" {
		t.Errorf("city type = %q, want string", got)
	}
	if got := parsed.Properties["units"].Description; got != "metric or imperial" {
		t.Errorf("units description = %q", got)
	}
	if len(parsed.Required) != 1 || parsed.Required[0] != "city" {
		t.Errorf("required = %v, want [city]", parsed.Required)
	}
}

func TestRegistryExecute_PositionalBinding(t *testing.T) {
	t.Parallel()

	var got []any
	r := NewRegistry()
	err := r.Register(Definition{
		Name: "add",
		Params: []Param{
			{Name: "a", Type: TypeNumber},
			{Name: "b", Type: TypeNumber},
		},
		Exec: func(_ context.Context, args ...any) (string, error) {
			got = append([]any{}, args...)
			return "ok", nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	// Argument mapping order must not matter; declaration order must.
	if _, err := r.Execute(context.Background(), "add", map[string]any{"b": 2, "a": 1}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("executor received %v, want [1 2]", got)
	}
}

func TestRegistryExecute_MissingArgumentsAreNil(t *testing.T) {
	t.Parallel()

	var got []any
	r := NewRegistry()
	err := r.Register(Definition{
		Name: "greet",
		Params: []Param{
			{Name: "name", Type: TypeString},
			{Name: "greeting", Type: TypeString, Optional: true},
		},
		Exec: func(_ context.Context, args ...any) (string, error) {
			got = append([]any{}, args...)
			return "ok", nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := r.Execute(context.Background(), "greet", map[string]any{"name": "ada"}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("executor received %d args, want 2", len(got))
	}
	if got[0] != "ada" || got[1] != nil {
		t.Errorf("executor received %v, want [ada <nil>]", got)
	}
}

func TestRegistryExecute_NotFound(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	_, err := r.Execute(context.Background(), "nope", nil)
	if !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("expected ErrToolNotFound, got %v", err)
	}
}

func TestRegistryExecute_ErrorContainment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		def  Definition
		want string
	}{
		{
			name: "executor error",
			def: Definition{
				Name: "flaky",
				Exec: func(context.Context, ...any) (string, error) {
					return "", errors.New("upstream exploded")
				},
			},
			want: "Error executing flaky: upstream exploded",
		},
		{
			name: "executor panic",
			def: Definition{
				Name: "crashy",
				Exec: func(context.Context, ...any) (string, error) {
					panic("nil map write")
				},
			},
			want: "Error executing crashy: panic: nil map write",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := NewRegistry()
			if err := r.Register(tt.def); err != nil {
				t.Fatal(err)
			}

			out, err := r.Execute(context.Background(), tt.def.Name, nil)
			if err != nil {
				t.Fatalf("execute returned error %v, want contained textual result", err)
			}
			if !strings.HasPrefix(out, "Error executing "+tt.def.Name+": ") {
				t.Errorf("result %q lacks containment prefix", out)
			}
			if out != tt.want {
				t.Errorf("result = %q, want %q", out, tt.want)
			}
		})
	}
}

func TestRegistryAccessors(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if err := r.Register(echoTool("one")); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(echoTool("two")); err != nil {
		t.Fatal(err)
	}

	if !r.Has("one") || r.Has("three") {
		t.Error("Has gave wrong membership")
	}
	if r.Count() != 2 {
		t.Errorf("Count = %d, want 2", r.Count())
	}
	names := r.Names()
	if len(names) != 2 || names[0] != "one" || names[1] != "two" {
		t.Errorf("Names = %v, want [one two]", names)
	}
}
