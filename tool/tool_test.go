package tool

import (
	"strings"
	"testing"
)

func weatherSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"location": map[string]any{
				"type":        "string",
				"description": "City name, optionally with country",
			},
			"units": map[string]any{
				"type": "string",
				"enum": []any{"metric", "imperial"},
			},
			"days": map[string]any{
				"type":    []any{"integer", "null"},
				"default": 1,
			},
		},
		"required": []any{"location"},
	}
}

func TestParametersFromSchema(t *testing.T) {
	params := ParametersFromSchema(weatherSchema())
	if len(params) != 3 {
		t.Fatalf("expected 3 parameters, got %d", len(params))
	}

	names := []string{params[0].Name, params[1].Name, params[2].Name}
	if strings.Join(names, ",") != "days,location,units" {
		t.Fatalf("expected parameters sorted alphabetically, got %v", names)
	}
	if params[0].Type != "integer" {
		t.Fatalf("expected nullable integer to resolve to integer, got %q", params[0].Type)
	}
	if !params[1].Required {
		t.Fatal("expected 'location' to be required")
	}
	if len(params[2].Enum) != 2 {
		t.Fatalf("expected enum values, got %v", params[2].Enum)
	}
}

func TestParametersFromSchemaNonObject(t *testing.T) {
	if params := ParametersFromSchema(map[string]any{"type": "string"}); params != nil {
		t.Fatalf("expected nil for non-object schema, got %v", params)
	}
	if params := ParametersFromSchema(nil); params != nil {
		t.Fatalf("expected nil for nil schema, got %v", params)
	}
}

func TestValidateArgs(t *testing.T) {
	d := NewDescriptor("get_weather", "Get the current weather", weatherSchema())

	tests := []struct {
		name    string
		args    map[string]any
		wantErr string
	}{
		{name: "valid", args: map[string]any{"location": "Hyderabad"}},
		{name: "missing required", args: map[string]any{}, wantErr: "missing required parameter: location"},
		{name: "wrong type", args: map[string]any{"location": 42.0}, wantErr: "expected string"},
		{name: "bad enum", args: map[string]any{"location": "Paris", "units": "kelvin"}, wantErr: "not one of"},
		{name: "fractional integer", args: map[string]any{"location": "Paris", "days": 1.5}, wantErr: "expected integer"},
		{name: "whole float integer", args: map[string]any{"location": "Paris", "days": 2.0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := d.ValidateArgs(tt.args)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestToJSONSchemaForwardsInputSchema(t *testing.T) {
	schema := weatherSchema()
	d := NewDescriptor("get_weather", "Get the current weather", schema)

	out := d.ToJSONSchema()
	if out["type"] != "function" {
		t.Fatalf("expected function type, got %v", out["type"])
	}
	fn := out["function"].(map[string]any)
	if fn["name"] != "get_weather" {
		t.Fatalf("unexpected name %v", fn["name"])
	}
	params := fn["parameters"].(map[string]any)
	if _, ok := params["properties"].(map[string]any)["location"]; !ok {
		t.Fatalf("expected original schema to be forwarded: %v", params)
	}
}

func TestToJSONSchemaFromParameters(t *testing.T) {
	d := &Descriptor{
		Name: "add",
		Parameters: []Parameter{
			{Name: "a", Type: "number", Required: true},
			{Name: "b", Type: "number", Required: true},
		},
	}
	fn := d.ToJSONSchema()["function"].(map[string]any)
	params := fn["parameters"].(map[string]any)
	required := params["required"].([]string)
	if len(required) != 2 {
		t.Fatalf("expected 2 required parameters, got %v", required)
	}
}

func TestRenamedCopies(t *testing.T) {
	d := NewDescriptor("add", "Add two numbers", nil)
	r := d.Renamed("Math.add")
	if r.Name != "Math.add" || d.Name != "add" {
		t.Fatalf("Renamed should not mutate original: %q %q", d.Name, r.Name)
	}
}
