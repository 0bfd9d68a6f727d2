package internal

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// FastHash is a high-performance non-cryptographic hash function used for
// rate-limit bucket keys and other cases where collision resistance against
// an adversary is not required.
func FastHash(text string) string {
	h := xxhash.Sum64String(text)
	return strconv.FormatUint(h, 16)
}
