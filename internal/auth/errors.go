package auth

import "errors"

// Exchange errors. ErrExchange wraps every failure of the token
// endpoint call so callers can match the whole class with errors.Is.
var (
	ErrExchange = errors.New("credential exchange failed")
	ErrNoToken  = errors.New("exchange response contains no access token")
	ErrNoExpiry = errors.New("exchange response carries no usable expiry")
)
