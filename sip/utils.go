package sip

import (
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// RFC3261BranchMagicCookie prefixes every top-Via branch this library
// generates (RFC 3261 §8.1.1.7).
const RFC3261BranchMagicCookie = "z9hG4bK"

// randHex returns n lowercase hex characters sourced from uuid.New,
// which draws from crypto/rand itself; this keeps every identifier this
// package mints (branch, tag, Call-ID, cnonce) on one random source
// instead of hand-rolling a second one.
func randHex(n int) string {
	var b strings.Builder
	for b.Len() < n {
		u := uuid.New()
		b.WriteString(hex.EncodeToString(u[:]))
	}
	return b.String()[:n]
}

// GenerateBranch returns a fresh top-Via branch token, e.g.
// "z9hG4bK.a1b2c3d4e5f6a7b8".
func GenerateBranch() string {
	var b strings.Builder
	b.WriteString(RFC3261BranchMagicCookie)
	b.WriteByte('.')
	b.WriteString(randHex(16))
	return b.String()
}

// GenerateTag returns a fresh From/To tag: 16 random hex characters per
// SPEC_FULL §6.1.
func GenerateTag() string {
	return randHex(16)
}

// GenerateCallID returns a fresh Call-ID of the form
// "<32 hex>@<host>" per SPEC_FULL §6.1.
func GenerateCallID(host string) string {
	return randHex(32) + "@" + host
}

// GenerateCNonce returns 16 random hex characters, fresh per Digest
// attempt (SPEC_FULL §4.3 step 5).
func GenerateCNonce() string {
	return randHex(16)
}
