package app

import "errors"

var (
	ErrMissingFields      = errors.New("Missing required fields")
	ErrMissingCredentials = errors.New("Missing email or password")
	ErrInvalidRole        = errors.New("role must be farmer or admin")
	ErrEmailAlreadyExists = errors.New("Email already exists")

	// ErrInvalidCredentials covers both unknown e-mail and wrong password so
	// callers cannot probe which accounts exist.
	ErrInvalidCredentials = errors.New("Invalid login")
	ErrPasswordNotSet     = errors.New("Password not set")
	ErrUnauthorized       = errors.New("unauthorized")

	ErrUserNotFound = errors.New("User not found")
	ErrNoUsers      = errors.New("No users found")
	ErrNoFarmers    = errors.New("No farmer users found")

	ErrInvalidCowID  = errors.New("Invalid Cow ID format")
	ErrCowExists     = errors.New("Cow ID already exists")
	ErrCowNotFound   = errors.New("Cow not found")
	ErrNoValidFields = errors.New("No valid fields to update")
	ErrNoCows        = errors.New("No cows found")
	ErrMissingSearch = errors.New("Missing search field or value")

	ErrModelUnavailable = errors.New("prediction model not configured")
)

// FieldError reports a single invalid or missing request field.
type FieldError struct {
	Field string
	Msg   string
}

func (e *FieldError) Error() string {
	return e.Msg
}

func missingField(field string) error {
	return &FieldError{Field: field, Msg: "Missing field: " + field}
}

func invalidField(field, want string) error {
	return &FieldError{Field: field, Msg: "Invalid field " + field + ": must be " + want}
}
