package credentials

import "errors"

var (
	// ErrInvalidSystemID is returned for IDs that cannot name a secret file
	ErrInvalidSystemID = errors.New("invalid system id")

	// ErrInvalidKey is returned when a private_key entry does not parse
	ErrInvalidKey = errors.New("invalid private key")

	// ErrMalformedSecret is returned when a secret file cannot be decoded
	ErrMalformedSecret = errors.New("malformed secret")
)
