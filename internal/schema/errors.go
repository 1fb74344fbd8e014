package schema

import "errors"

var (
	// ErrSchemaFrozen is returned when the registry is modified after ToDescriptor.
	ErrSchemaFrozen = errors.New("schema is frozen")

	// ErrConstraintConflict is returned for duplicate entity, field, relation or
	// index definitions.
	ErrConstraintConflict = errors.New("constraint conflict")

	ErrUnknownEntity    = errors.New("unknown entity")
	ErrUnknownField     = errors.New("unknown field")
	ErrInvalidField     = errors.New("invalid field")
	ErrInvalidEnumValue = errors.New("invalid enum value")
)
