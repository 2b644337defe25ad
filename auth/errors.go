package auth

import "errors"

var (
	// ErrNoChallenge is returned when the response carries neither a
	// WWW-Authenticate nor a Proxy-Authenticate header.
	ErrNoChallenge = errors.New("auth: response has no challenge header")
	// ErrNoCredentials is returned when no credential source has an
	// entry for the challenge's realm.
	ErrNoCredentials = errors.New("auth: no credentials for realm")
	// ErrRetryExhausted is returned when a request has already been
	// retried once with credentials and failed again (SPEC_FULL §4.7
	// step 5: "do not loop").
	ErrRetryExhausted = errors.New("auth: second challenge after credentialed retry, not retrying again")
)
