package testutil

import "crypto/sha256"

// FixedKey derives a deterministic 32-byte AES key from seed.
//
// The same seed always yields the same key, so encrypted fixtures and golden
// output stay byte-identical across runs. An empty seed uses "test-key".
func FixedKey(seed string) []byte {
	if seed == "" {
		seed = "test-key"
	}
	sum := sha256.Sum256([]byte(seed))
	return sum[:]
}
