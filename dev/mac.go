package dev

import "crypto/sha256"

// contentMAC is the reference in-memory MAC: a plain content hash. Real
// Storage back-ends (encrypted files, SGX-sealed files) compute this from
// whatever authenticated-encryption scheme they use; MemStorage and
// DirStorage both use this hash for their files' MACs.
func contentMAC(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}
