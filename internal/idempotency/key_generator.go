package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

// GenerateKey hashes parts into a fixed-length store key. Parts are length-prefixed, so
// ("a:b", "c") and ("a", "b:c") give different keys.
func GenerateKey(parts ...any) string {
	h := sha256.New()
	for _, part := range parts {
		s := fmt.Sprint(part)
		h.Write([]byte(strconv.Itoa(len(s))))
		h.Write([]byte{':'})
		h.Write([]byte(s))
	}

	return hex.EncodeToString(h.Sum(nil))
}
