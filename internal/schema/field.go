package schema

import "fmt"

// FieldType identifies the kind of value a field holds.
type FieldType string

const (
	TypeText    FieldType = "text"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeEnum    FieldType = "enum"
)

// Field is a typed column declaration. Build one with Text, Number, Boolean or
// Enum and refine it with Required and Default.
type Field struct {
	name       string
	typ        FieldType
	required   bool
	def        any
	hasDefault bool
	values     []string
}

// Text declares a text field.
func Text(name string) Field { return Field{name: name, typ: TypeText} }

// Number declares a numeric field.
func Number(name string) Field { return Field{name: name, typ: TypeNumber} }

// Boolean declares a boolean field.
func Boolean(name string) Field { return Field{name: name, typ: TypeBoolean} }

// Enum declares a field restricted to the given closed set of values.
func Enum(name string, values ...string) Field {
	return Field{name: name, typ: TypeEnum, values: append([]string(nil), values...)}
}

// Required marks the field as required on write.
func (f Field) Required() Field {
	f.required = true
	return f
}

// Default sets the value the storage layer writes when the field is omitted.
func (f Field) Default(v any) Field {
	f.def = v
	f.hasDefault = true
	return f
}

// Name returns the field name.
func (f Field) Name() string { return f.name }

// Type returns the field type.
func (f Field) Type() FieldType { return f.typ }

// validate checks the declaration is internally consistent.
func (f Field) validate() error {
	if f.name == "" {
		return fmt.Errorf("%w: field name is empty", ErrInvalidField)
	}
	if isReservedColumn(f.name) {
		return fmt.Errorf("%w: field %q uses a reserved column name", ErrConstraintConflict, f.name)
	}

	switch f.typ {
	case TypeText, TypeNumber, TypeBoolean:
	case TypeEnum:
		if len(f.values) == 0 {
			return fmt.Errorf("%w: enum field %q has no values", ErrInvalidField, f.name)
		}
		seen := make(map[string]bool, len(f.values))
		for _, v := range f.values {
			if seen[v] {
				return fmt.Errorf("%w: enum field %q repeats value %q", ErrInvalidField, f.name, v)
			}
			seen[v] = true
		}
	default:
		return fmt.Errorf("%w: field %q has unknown type %q", ErrInvalidField, f.name, f.typ)
	}

	if f.hasDefault {
		if err := CheckValue(f.descriptor(), f.def); err != nil {
			return fmt.Errorf("%w: default for %q: %v", ErrInvalidField, f.name, err)
		}
	}
	return nil
}

func (f Field) descriptor() FieldDescriptor {
	d := FieldDescriptor{
		Name:     f.name,
		Type:     f.typ,
		Required: f.required,
		Values:   append([]string(nil), f.values...),
	}
	if f.hasDefault {
		d.Default = f.def
	}
	return d
}

// CheckValue reports whether v is an acceptable value for the field. A nil value
// is always accepted here; required-ness is the caller's concern.
func CheckValue(fd FieldDescriptor, v any) error {
	if v == nil {
		return nil
	}

	switch fd.Type {
	case TypeText:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("expected text, got %T", v)
		}
	case TypeNumber:
		switch v.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		default:
			return fmt.Errorf("expected number, got %T", v)
		}
	case TypeBoolean:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("expected boolean, got %T", v)
		}
	case TypeEnum:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected enum value, got %T", v)
		}
		for _, allowed := range fd.Values {
			if s == allowed {
				return nil
			}
		}
		return fmt.Errorf("%w: %q not in %v", ErrInvalidEnumValue, s, fd.Values)
	}
	return nil
}
