package reminder

import (
	"crypto/rand"
	"math/big"
)

const uidAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// UIDLength is the fixed length of external reminder identifiers.
const UIDLength = 64

// GenerateUID returns a fresh 64-character alphanumeric identifier.
// UIDs are handed out to external callers and never reused, so they
// come from the OS entropy source rather than a seeded PRNG.
func GenerateUID() string {
	max := big.NewInt(int64(len(uidAlphabet)))
	out := make([]byte, UIDLength)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// rand.Reader failing means the OS entropy source is
			// broken; nothing sensible to do but stop.
			panic("reminder: entropy source unavailable: " + err.Error())
		}
		out[i] = uidAlphabet[n.Int64()]
	}
	return string(out)
}
