package tool

import (
	"fmt"
	"sort"
	"strings"
)

// Parameter defines a tool parameter
type Parameter struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"` // string, number, integer, boolean, object, array
	Description string   `json:"description"`
	Required    bool     `json:"required"`
	Enum        []string `json:"enum,omitempty"`
	Default     any      `json:"default,omitempty"`
}

// Descriptor is a tool's identity and contract as advertised by its server.
type Descriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
	Parameters  []Parameter    `json:"parameters"`
}

// NewDescriptor builds a descriptor and flattens the top-level schema properties.
func NewDescriptor(name, description string, schema map[string]any) *Descriptor {
	return &Descriptor{
		Name:        name,
		Description: description,
		InputSchema: schema,
		Parameters:  ParametersFromSchema(schema),
	}
}

// Renamed returns a copy of the descriptor under a different name.
func (d *Descriptor) Renamed(name string) *Descriptor {
	cp := *d
	cp.Name = name
	return &cp
}

// ValidateArgs validates the provided arguments against the tool's parameters.
// Only required presence and JSON types of declared parameters are checked.
func (d *Descriptor) ValidateArgs(args map[string]any) error {
	var problems []string
	for _, param := range d.Parameters {
		v, ok := args[param.Name]
		if !ok {
			if param.Required {
				problems = append(problems, fmt.Sprintf("missing required parameter: %s", param.Name))
			}
			continue
		}
		if !matchesType(param.Type, v) {
			problems = append(problems, fmt.Sprintf("parameter %s: expected %s, got %T", param.Name, param.Type, v))
		}
		if len(param.Enum) > 0 {
			s, isString := v.(string)
			if isString && !contains(param.Enum, s) {
				problems = append(problems, fmt.Sprintf("parameter %s: %q is not one of %v", param.Name, s, param.Enum))
			}
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%s", strings.Join(problems, "; "))
}

// ToJSONSchema returns the tool definition in function-calling format for an LLM.
// The server's own input schema is forwarded when present.
func (d *Descriptor) ToJSONSchema() map[string]any {
	parameters := d.InputSchema
	if parameters == nil {
		properties := make(map[string]any)
		required := make([]string, 0)

		for _, param := range d.Parameters {
			prop := map[string]any{
				"type":        param.Type,
				"description": param.Description,
			}
			if len(param.Enum) > 0 {
				prop["enum"] = param.Enum
			}
			if param.Default != nil {
				prop["default"] = param.Default
			}
			properties[param.Name] = prop

			if param.Required {
				required = append(required, param.Name)
			}
		}
		parameters = map[string]any{
			"type":       "object",
			"properties": properties,
			"required":   required,
		}
	}

	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        d.Name,
			"description": d.Description,
			"parameters":  parameters,
		},
	}
}

// ParametersFromSchema flattens the top-level properties of an object JSON
// schema into parameters sorted by name.
func ParametersFromSchema(schema map[string]any) []Parameter {
	if schema == nil {
		return nil
	}

	typeVal, _ := schema["type"].(string)
	if strings.ToLower(typeVal) != "object" {
		return nil
	}

	propsRaw, ok := schema["properties"].(map[string]any)
	if !ok || len(propsRaw) == 0 {
		return nil
	}

	requiredSet := make(map[string]struct{})
	if list, ok := toStringSlice(schema["required"]); ok {
		for _, name := range list {
			requiredSet[name] = struct{}{}
		}
	}

	names := make([]string, 0, len(propsRaw))
	for name := range propsRaw {
		names = append(names, name)
	}
	sort.Strings(names)

	parameters := make([]Parameter, 0, len(names))
	for _, name := range names {
		propMap, ok := propsRaw[name].(map[string]any)
		if !ok {
			continue
		}

		param := Parameter{
			Name:        name,
			Description: stringValue(propMap["description"]),
			Type:        typeName(propMap["type"]),
			Default:     propMap["default"],
		}

		if _, ok := requiredSet[name]; ok {
			param.Required = true
		}

		if enums, ok := toStringSlice(propMap["enum"]); ok {
			param.Enum = enums
		}

		if param.Type == "" {
			param.Type = inferType(propMap)
		}

		parameters = append(parameters, param)
	}

	return parameters
}

func matchesType(typ string, v any) bool {
	switch typ {
	case "string":
		_, ok := v.(string)
		return ok
	case "number":
		return isNumber(v)
	case "integer":
		switch n := v.(type) {
		case int, int32, int64:
			return true
		case float64:
			return n == float64(int64(n))
		case float32:
			return n == float32(int64(n))
		}
		return false
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "array":
		_, ok := v.([]any)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	default:
		return true
	}
}

func isNumber(v any) bool {
	switch v.(type) {
	case float64, float32, int, int32, int64:
		return true
	}
	return false
}

// typeName accepts both "type": "string" and "type": ["string", "null"].
func typeName(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if list, ok := toStringSlice(v); ok {
		for _, s := range list {
			if s != "null" {
				return s
			}
		}
	}
	return ""
}

func inferType(prop map[string]any) string {
	if _, ok := prop["items"]; ok {
		return "array"
	}
	if _, ok := prop["properties"]; ok {
		return "object"
	}
	return "string"
}

func stringValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func toStringSlice(v any) ([]string, bool) {
	switch raw := v.(type) {
	case []string:
		return raw, true
	case []any:
		values := make([]string, 0, len(raw))
		for _, item := range raw {
			if s, ok := item.(string); ok {
				values = append(values, s)
			}
		}
		return values, true
	default:
		return nil, false
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
