package auth

import "github.com/oornnery/sipgox/digest"

// CredentialLookup resolves credentials for a realm, returning ok=false
// when that source has no entry.
type CredentialLookup func(realm string) (digest.Credentials, bool)

// Resolver selects credentials by the precedence rule of SPEC_FULL
// §4.3/§4.7: per-call, then client-level, then handler-supplied. Any
// field left nil is simply skipped.
type Resolver struct {
	PerCall     CredentialLookup
	ClientLevel CredentialLookup
	Handler     CredentialLookup
}

func (r Resolver) Resolve(realm string) (digest.Credentials, bool) {
	for _, lookup := range []CredentialLookup{r.PerCall, r.ClientLevel, r.Handler} {
		if lookup == nil {
			continue
		}
		if cred, ok := lookup(realm); ok {
			return cred, true
		}
	}
	return digest.Credentials{}, false
}
