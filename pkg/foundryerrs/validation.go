package foundryerrs

// ValidationError represents a request rejected before it was sent.
type ValidationError struct {
	*BaseError
	field string
	value any
}

// NewValidationError creates a new validation error.
func NewValidationError(
	code ErrorCode,
	message string,
	field string,
	value any,
) *ValidationError {
	err := &ValidationError{
		BaseError: NewBaseError(CategoryValidation, code, message, nil),
		field:     field,
		value:     value,
	}

	_ = err.WithMetadata("field", field)
	_ = err.WithMetadata("value", value)

	return err
}

// Field returns the validation field name.
func (e *ValidationError) Field() string {
	return e.field
}

// Value returns the validation value.
func (e *ValidationError) Value() any {
	return e.value
}
