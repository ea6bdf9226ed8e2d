package models

import "errors"

// Error kinds shared by every layer. Wrap them with fmt.Errorf("...: %w") and
// match with errors.Is.
var (
	// ErrInputMalformed is returned when a payload fails to parse or decode.
	ErrInputMalformed = errors.New("input malformed")

	// ErrInvalidCredentials is returned for an unknown username or a wrong password alike.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountNotFound is returned when a referenced account does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrDeviceNotFound is returned when a device does not exist or is not linked to the caller.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrPropertyNotFound is returned when a device has no stored value for a property.
	ErrPropertyNotFound = errors.New("property not found")

	// ErrAlreadyExists is returned when creating an account whose username is taken.
	ErrAlreadyExists = errors.New("already exists")

	// ErrStoreUnavailable marks a persistence failure the caller may retry.
	ErrStoreUnavailable = errors.New("store unavailable")
)
