package atm

import "github.com/cespare/xxhash/v2"

// Digest is a fixed-width fingerprint of a key sequence. It is only meant for comparing a swiped
// card against typed keys within one process and must not be stored as a credential.
type Digest uint64

// HashKeys returns the digest of keys. Every key contributes one byte, so the result depends on
// both the keys and their order.
func HashKeys(keys []Key) Digest {
	h := xxhash.New()
	buf := make([]byte, len(keys))
	for i, k := range keys {
		buf[i] = byte(k)
	}
	_, _ = h.Write(buf)

	return Digest(h.Sum64())
}
