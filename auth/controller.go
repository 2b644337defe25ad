package auth

import (
	"github.com/rs/zerolog"

	"github.com/oornnery/sipgox/digest"
	"github.com/oornnery/sipgox/sip"
)

// Controller answers 401/407 challenges on terminated transactions per
// SPEC_FULL §4.7, grounded on the teacher's digestAuthApply /
// DoDigestAuth flow in client.go/dialog_client.go.
type Controller struct {
	resolver     Resolver
	nc           *digest.NonceCounter
	preferSHA256 bool
	log          zerolog.Logger
}

// NewController builds a Controller. preferSHA256 selects SHA-256 over
// MD5 when a challenge offers both algorithms via multiple
// WWW-Authenticate/Proxy-Authenticate lines (library default,
// configurable per SPEC_FULL §4.7 step 1).
func NewController(resolver Resolver, preferSHA256 bool, logger zerolog.Logger) *Controller {
	return &Controller{
		resolver:     resolver,
		nc:           digest.NewNonceCounter(),
		preferSHA256: preferSHA256,
		log:          logger.With().Str("component", "auth").Logger(),
	}
}

// challengeHeaderFor returns the challenge header name and credential
// header name for a given status code.
func challengeHeaderFor(statusCode int) (challengeHeader, credentialHeader string, ok bool) {
	switch statusCode {
	case sip.StatusUnauthorized:
		return "WWW-Authenticate", "Authorization", true
	case sip.StatusProxyAuthRequired:
		return "Proxy-Authenticate", "Proxy-Authorization", true
	default:
		return "", "", false
	}
}

// selectChallenge parses every challenge header value on res and picks
// the preferred one: the first SHA-256 or SHA-256-sess challenge when
// preferSHA256 is set, else the first MD5, MD5-sess or algorithm-less
// challenge, else the first parseable challenge.
func (c *Controller) selectChallenge(res *sip.Response, headerName string) (digest.Challenge, error) {
	values := res.Headers().GetAll(headerName)
	if len(values) == 0 {
		return digest.Challenge{}, ErrNoChallenge
	}
	var parsed []digest.Challenge
	for _, v := range values {
		chal, err := digest.ParseChallenge(v)
		if err != nil {
			continue
		}
		parsed = append(parsed, chal)
	}
	if len(parsed) == 0 {
		return digest.Challenge{}, ErrNoChallenge
	}
	if c.preferSHA256 {
		for _, chal := range parsed {
			if chal.Algorithm == digest.SHA256 || chal.Algorithm == digest.SHA256Sess {
				return chal, nil
			}
		}
	}
	for _, chal := range parsed {
		if chal.Algorithm == "" || chal.Algorithm == digest.MD5 || chal.Algorithm == digest.MD5Sess {
			return chal, nil
		}
	}
	return parsed[0], nil
}

// Authenticate builds the retried request for a 401/407, per SPEC_FULL
// §4.7 steps 1-3. attempt is the number of times original has already
// been challenged-and-retried; per step 5 a second failure is not
// retried again.
func (c *Controller) Authenticate(original *sip.Request, res *sip.Response, attempt int) (*sip.Request, error) {
	if attempt >= 1 {
		return nil, ErrRetryExhausted
	}
	return c.buildRetry(original, res, nil)
}

// AuthenticateWith behaves like Authenticate but, when override is
// non-nil, uses it in place of the resolver — grounds
// retry_with_auth(challenge_response, credentials=...) of SPEC_FULL
// §4.10, which lets a caller supply credentials for one retry without
// touching the client-level resolver. Unlike Authenticate, it is not
// attempt-gated: a caller invoking retry_with_auth has already decided
// to retry.
func (c *Controller) AuthenticateWith(original *sip.Request, res *sip.Response, override *digest.Credentials) (*sip.Request, error) {
	return c.buildRetry(original, res, override)
}

func (c *Controller) buildRetry(original *sip.Request, res *sip.Response, override *digest.Credentials) (*sip.Request, error) {
	challengeHeader, credentialHeader, ok := challengeHeaderFor(res.StatusCode)
	if !ok {
		return nil, ErrNoChallenge
	}
	chal, err := c.selectChallenge(res, challengeHeader)
	if err != nil {
		return nil, err
	}
	var cred digest.Credentials
	if override != nil {
		cred = *override
	} else {
		cred, ok = c.resolver.Resolve(chal.Realm)
		if !ok {
			return nil, ErrNoCredentials
		}
	}

	retry := original.Clone()
	cseq, _ := retry.CSeqHeader()
	retry.Headers().Set("CSeq", sip.CSeq{Seq: cseq.Seq + 1, Method: cseq.Method}.String())

	if via, ok := retry.Via(); ok {
		via = via.Clone()
		via.Params.Set("branch", sip.GenerateBranch())
		retry.Headers().Set("Via", via.String())
	}

	params := digest.Params{
		Method: string(retry.Method),
		URI:    retry.RequestURI.String(),
		Body:   retry.Body(),
		CNonce: sip.GenerateCNonce(),
		NC:     c.nc.Next(chal.Realm, chal.Nonce),
	}
	value, err := digest.Authorization(cred, chal, params)
	if err != nil {
		return nil, err
	}
	retry.Headers().Add(credentialHeader, "Digest "+value)
	return retry, nil
}
