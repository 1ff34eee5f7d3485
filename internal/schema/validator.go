package schema

import (
	"fmt"
	"reflect"
	"regexp"
	"sync"
	"time"
)

// FieldType tags the kind of runtime check a FieldSchema performs.
type FieldType string

const (
	FieldTypeString    FieldType = "string"
	FieldTypeFloat     FieldType = "float"
	FieldTypeTimestamp FieldType = "timestamp"
)

// FieldSchema is one field's predicate set: required-ness, an enum of
// allowed values, and/or a numeric range. A field with no constraints set
// always passes once type-checked.
type FieldSchema struct {
	Type     FieldType
	Required bool
	MinValue *float64
	MaxValue *float64
	Enum     []string
	Pattern  string
}

// Schema is a named set of FieldSchema predicates for one canonical type.
type Schema struct {
	Name   string
	Fields map[string]FieldSchema
}

// ValidationError describes one failed field predicate.
type ValidationError struct {
	Field   string
	Value   interface{}
	Rule    string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("field %q: %s", e.Field, e.Message)
}

// ValidationResult aggregates every failure found for one record.
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
	Schema string
}

// Validator runs registered Schemas against map[string]interface{}
// representations of canonical records. Regex patterns are compiled once
// and cached.
type Validator struct {
	mu      sync.RWMutex
	schemas map[string]*Schema
	cache   map[string]*regexp.Regexp
}

// NewValidator creates a Validator with every canonical schema registered.
func NewValidator() *Validator {
	v := &Validator{
		schemas: make(map[string]*Schema),
		cache:   make(map[string]*regexp.Regexp),
	}
	for _, s := range builtinSchemas() {
		v.Register(s)
	}
	return v
}

// Register adds or replaces a schema under its Name.
func (v *Validator) Register(s *Schema) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.schemas[s.Name] = s
}

// Validate checks data against the schema named schemaName.
func (v *Validator) Validate(schemaName string, data map[string]interface{}) *ValidationResult {
	v.mu.RLock()
	s, ok := v.schemas[schemaName]
	v.mu.RUnlock()

	result := &ValidationResult{Valid: true, Schema: schemaName}
	if !ok {
		result.Valid = false
		result.Errors = append(result.Errors, ValidationError{
			Rule: "schema", Message: fmt.Sprintf("unknown schema %q", schemaName),
		})
		return result
	}

	for name, field := range s.Fields {
		value, present := data[name]
		if !present {
			if field.Required {
				result.Valid = false
				result.Errors = append(result.Errors, ValidationError{
					Field: name, Rule: "required", Message: "required field is missing",
				})
			}
			continue
		}

		if err := v.validateField(name, field, value); err != nil {
			result.Valid = false
			result.Errors = append(result.Errors, *err)
		}
	}

	return result
}

func (v *Validator) validateField(name string, field FieldSchema, value interface{}) *ValidationError {
	if err := v.validateType(name, field, value); err != nil {
		return err
	}
	if len(field.Enum) > 0 {
		if err := v.validateEnum(name, field, value); err != nil {
			return err
		}
	}
	if field.MinValue != nil || field.MaxValue != nil {
		if err := v.validateRange(name, field, value); err != nil {
			return err
		}
	}
	if field.Pattern != "" {
		if err := v.validatePattern(name, field, value); err != nil {
			return err
		}
	}
	return nil
}

func (v *Validator) validateType(name string, field FieldSchema, value interface{}) *ValidationError {
	switch field.Type {
	case FieldTypeString:
		if _, ok := value.(string); !ok {
			return &ValidationError{Field: name, Value: value, Rule: "type", Message: "expected string"}
		}
	case FieldTypeFloat:
		if _, ok := toFloat64(value); !ok {
			return &ValidationError{Field: name, Value: value, Rule: "type", Message: "expected numeric value"}
		}
	case FieldTypeTimestamp:
		if t, ok := value.(time.Time); !ok || t.IsZero() {
			return &ValidationError{Field: name, Value: value, Rule: "type", Message: "expected non-zero timestamp"}
		}
	}
	return nil
}

func (v *Validator) validateEnum(name string, field FieldSchema, value interface{}) *ValidationError {
	s, ok := value.(string)
	if !ok {
		return nil
	}
	for _, allowed := range field.Enum {
		if s == allowed {
			return nil
		}
	}
	return &ValidationError{
		Field: name, Value: value, Rule: "enum",
		Message: fmt.Sprintf("%q is not one of %v", s, field.Enum),
	}
}

func (v *Validator) validateRange(name string, field FieldSchema, value interface{}) *ValidationError {
	f, ok := toFloat64(value)
	if !ok {
		return nil
	}
	if field.MinValue != nil && f < *field.MinValue {
		return &ValidationError{Field: name, Value: value, Rule: "min", Message: fmt.Sprintf("%.8f is below minimum %.8f", f, *field.MinValue)}
	}
	if field.MaxValue != nil && f > *field.MaxValue {
		return &ValidationError{Field: name, Value: value, Rule: "max", Message: fmt.Sprintf("%.8f exceeds maximum %.8f", f, *field.MaxValue)}
	}
	return nil
}

func (v *Validator) validatePattern(name string, field FieldSchema, value interface{}) *ValidationError {
	s, ok := value.(string)
	if !ok {
		return nil
	}

	v.mu.Lock()
	re, ok := v.cache[field.Pattern]
	if !ok {
		var err error
		re, err = regexp.Compile(field.Pattern)
		if err != nil {
			v.mu.Unlock()
			return &ValidationError{Field: name, Rule: "pattern", Message: fmt.Sprintf("invalid pattern: %v", err)}
		}
		v.cache[field.Pattern] = re
	}
	v.mu.Unlock()

	if !re.MatchString(s) {
		return &ValidationError{Field: name, Value: value, Rule: "pattern", Message: fmt.Sprintf("%q does not match %s", s, field.Pattern)}
	}
	return nil
}

func toFloat64(value interface{}) (float64, bool) {
	switch x := reflect.ValueOf(value); x.Kind() {
	case reflect.Float32, reflect.Float64:
		return x.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(x.Int()), true
	default:
		return 0, false
	}
}

func ptr(f float64) *float64 { return &f }
