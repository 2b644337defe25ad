package digest

import "sync"

// NonceCounter tracks the monotonically increasing nc value per
// (realm, nonce), as required by SPEC_FULL §4.3 step 5. It is safe for
// concurrent use; a single instance is normally owned by the auth
// controller for the lifetime of the client.
type NonceCounter struct {
	mu     sync.Mutex
	counts map[string]uint32
}

func NewNonceCounter() *NonceCounter {
	return &NonceCounter{counts: map[string]uint32{}}
}

// Next returns the next nc for (realm, nonce), starting at 1.
func (n *NonceCounter) Next(realm, nonce string) uint32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	key := realm + "\x00" + nonce
	n.counts[key]++
	return n.counts[key]
}
