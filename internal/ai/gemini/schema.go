package gemini

import (
	"encoding/json"
	"fmt"
	"sort"

	"google.golang.org/genai"
)

// ToGenaiSchema converts the subset of JSON Schema understood by Gemini response
// schemas (type, properties, required, items, enum, description, nullable unions)
// into a *genai.Schema.
func ToGenaiSchema(schemaJSON string) (*genai.Schema, error) {
	var node map[string]any
	if err := json.Unmarshal([]byte(schemaJSON), &node); err != nil {
		return nil, fmt.Errorf("parse json schema: %w", err)
	}
	return convertNode(node, "(root)")
}

func convertNode(node map[string]any, path string) (*genai.Schema, error) {
	s := &genai.Schema{}

	if d, ok := node["description"].(string); ok {
		s.Description = d
	}

	switch t := node["type"].(type) {
	case string:
		typ, err := genaiType(t, path)
		if err != nil {
			return nil, err
		}
		s.Type = typ
	case []any:
		for _, v := range t {
			name, _ := v.(string)
			if name == "null" {
				nullable := true
				s.Nullable = &nullable
				continue
			}
			typ, err := genaiType(name, path)
			if err != nil {
				return nil, err
			}
			s.Type = typ
		}
	case nil:
		return nil, fmt.Errorf("%s: type is required", path)
	default:
		return nil, fmt.Errorf("%s: unsupported type declaration %v", path, t)
	}

	if values, ok := node["enum"].([]any); ok {
		for _, v := range values {
			if str, ok := v.(string); ok {
				s.Enum = append(s.Enum, str)
			}
		}
	}

	if required, ok := node["required"].([]any); ok {
		for _, v := range required {
			if str, ok := v.(string); ok {
				s.Required = append(s.Required, str)
			}
		}
	}

	if props, ok := node["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		names := make([]string, 0, len(props))
		for name := range props {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			child, ok := props[name].(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%s.%s: property schema must be an object", path, name)
			}
			converted, err := convertNode(child, path+"."+name)
			if err != nil {
				return nil, err
			}
			s.Properties[name] = converted
		}
		s.PropertyOrdering = orderProperties(names, s.Required)
	}

	if items, ok := node["items"].(map[string]any); ok {
		converted, err := convertNode(items, path+"[]")
		if err != nil {
			return nil, err
		}
		s.Items = converted
	}

	return s, nil
}

// orderProperties puts required properties first, in declaration order, followed
// by the optional ones alphabetically.
func orderProperties(names, required []string) []string {
	declared := make(map[string]bool, len(names))
	for _, n := range names {
		declared[n] = true
	}
	seen := make(map[string]bool, len(names))
	ordered := make([]string, 0, len(names))
	for _, r := range required {
		if declared[r] && !seen[r] {
			seen[r] = true
			ordered = append(ordered, r)
		}
	}
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			ordered = append(ordered, n)
		}
	}
	return ordered
}

func genaiType(name, path string) (genai.Type, error) {
	switch name {
	case "object":
		return genai.TypeObject, nil
	case "array":
		return genai.TypeArray, nil
	case "string":
		return genai.TypeString, nil
	case "number":
		return genai.TypeNumber, nil
	case "integer":
		return genai.TypeInteger, nil
	case "boolean":
		return genai.TypeBoolean, nil
	default:
		return "", fmt.Errorf("%s: unsupported type %q", path, name)
	}
}
