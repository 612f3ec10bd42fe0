package action

import (
	"encoding/json"
	"fmt"
	"math"
)

// ValidateInput checks a JSON object against an action's parameter schema.
// Only the subset of JSON Schema used by the builtin actions is understood:
// required, properties, type, items and enum.
func ValidateInput(schema map[string]interface{}, input json.RawMessage) error {
	var inputMap map[string]interface{}
	if err := json.Unmarshal(input, &inputMap); err != nil {
		return fmt.Errorf("params must be a JSON object: %w", err)
	}
	if inputMap == nil {
		inputMap = map[string]interface{}{}
	}

	return validateObject(schema, inputMap)
}

func requiredFields(schema map[string]interface{}) []string {
	switch required := schema["required"].(type) {
	case []string:
		return required
	case []interface{}:
		fields := make([]string, 0, len(required))
		for _, f := range required {
			if name, ok := f.(string); ok {
				fields = append(fields, name)
			}
		}
		return fields
	default:
		return nil
	}
}

func validateObject(schema map[string]interface{}, input map[string]interface{}) error {
	for _, field := range requiredFields(schema) {
		if _, exists := input[field]; !exists {
			return fmt.Errorf("missing required field: %s", field)
		}
	}

	properties, ok := schema["properties"].(map[string]interface{})
	if !ok {
		return nil
	}

	// Unknown fields are allowed; models often add harmless extras.
	for key, value := range input {
		propSchema, ok := properties[key].(map[string]interface{})
		if !ok {
			continue
		}
		if err := validateType(key, propSchema, value); err != nil {
			return err
		}
	}

	return nil
}

func validateType(fieldName string, schema map[string]interface{}, value interface{}) error {
	if err := validateEnum(fieldName, schema, value); err != nil {
		return err
	}

	expectedType, ok := schema["type"].(string)
	if !ok {
		return nil
	}

	switch expectedType {
	case "string":
		if _, ok := value.(string); !ok {
			return fmt.Errorf("field '%s' expected string, got %T", fieldName, value)
		}
	case "number":
		if _, ok := value.(float64); !ok {
			return fmt.Errorf("field '%s' expected number, got %T", fieldName, value)
		}
	case "integer":
		f, ok := value.(float64)
		if !ok || f != math.Trunc(f) {
			return fmt.Errorf("field '%s' expected integer, got %v", fieldName, value)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("field '%s' expected boolean, got %T", fieldName, value)
		}
	case "array":
		arr, ok := value.([]interface{})
		if !ok {
			return fmt.Errorf("field '%s' expected array, got %T", fieldName, value)
		}
		if itemsSchema, ok := schema["items"].(map[string]interface{}); ok {
			for i, item := range arr {
				if err := validateType(fmt.Sprintf("%s[%d]", fieldName, i), itemsSchema, item); err != nil {
					return err
				}
			}
		}
	case "object":
		obj, ok := value.(map[string]interface{})
		if !ok {
			return fmt.Errorf("field '%s' expected object, got %T", fieldName, value)
		}
		return validateObject(schema, obj)
	}

	return nil
}

func validateEnum(fieldName string, schema map[string]interface{}, value interface{}) error {
	var allowed []interface{}
	switch enum := schema["enum"].(type) {
	case []string:
		for _, v := range enum {
			allowed = append(allowed, v)
		}
	case []interface{}:
		allowed = enum
	default:
		return nil
	}

	for _, v := range allowed {
		if v == value {
			return nil
		}
	}
	return fmt.Errorf("field '%s' must be one of %v, got %v", fieldName, allowed, value)
}
