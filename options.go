package sipgox

import (
	"github.com/rs/zerolog"

	"github.com/oornnery/sipgox/auth"
	"github.com/oornnery/sipgox/digest"
	"github.com/oornnery/sipgox/events"
	"github.com/oornnery/sipgox/sip"
)

// WithIdentity sets the default From address used by invite/message/
// options calls that omit an explicit "from" (SPEC_FULL §4.10).
func WithIdentity(from sip.Address) Option {
	return func(c *Client) error {
		c.identity = from
		return nil
	}
}

// Option configures a Client at construction, grounded on the teacher's
// ClientOption functional-options idiom (client.go).
type Option func(c *Client) error

// WithLogger sets the base logger every owned component derives its own
// sub-logger from (no package-level logger is ever used, per R1).
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) error {
		c.log = logger
		return nil
	}
}

// WithUserAgentHeader sets the User-Agent header value stamped on every
// outbound request.
func WithUserAgentHeader(ua string) Option {
	return func(c *Client) error {
		c.userAgent = ua
		return nil
	}
}

// WithCredentials registers the client-level credential lookup consulted
// by the auth controller when a per-call credential is absent
// (SPEC_FULL §4.3/§4.7 precedence).
func WithCredentials(lookup auth.CredentialLookup) Option {
	return func(c *Client) error {
		c.authResolver.ClientLevel = lookup
		return nil
	}
}

// WithStaticCredentials is a convenience over WithCredentials for a
// client that only ever authenticates to one realm (or ignores realm
// matching entirely).
func WithStaticCredentials(cred digest.Credentials) Option {
	return WithCredentials(func(realm string) (digest.Credentials, bool) { return cred, true })
}

// WithPreferSHA256 overrides the auth controller's challenge-selection
// preference when a server offers both SHA-256 and MD5 (SPEC_FULL §4.7
// step 1). SHA-256 is preferred by default; pass false to force MD5.
func WithPreferSHA256(prefer bool) Option {
	return func(c *Client) error {
		c.preferSHA256 = prefer
		return nil
	}
}

// WithHooks installs the event pipeline's vtable (SPEC_FULL §4.9/R2).
func WithHooks(h events.Hooks) Option {
	return func(c *Client) error {
		c.hooks = h
		return nil
	}
}
