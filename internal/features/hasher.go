package features

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Hasher pseudonymizes source identifiers with keyed BLAKE2b so client
// addresses never reach the detector or storage. With hashing disabled the
// identifier passes through unchanged, which is not recommended.
type Hasher struct {
	key     []byte
	length  int
	enabled bool
}

func NewHasher(key string, length int, enabled bool) *Hasher {
	k := []byte(key)
	if len(k) > blake2b.Size {
		sum := blake2b.Sum256(k)
		k = sum[:]
	}
	if length <= 0 || length > 2*blake2b.Size256 {
		length = 2 * blake2b.Size256
	}
	return &Hasher{key: k, length: length, enabled: enabled}
}

func (h *Hasher) Hash(sourceID string) string {
	if !h.enabled || sourceID == "" {
		return sourceID
	}

	mac, err := blake2b.New256(h.key)
	if err != nil {
		// Only reachable with an oversized key, which NewHasher prevents.
		panic(err)
	}
	mac.Write([]byte(sourceID))
	return hex.EncodeToString(mac.Sum(nil))[:h.length]
}

func (h *Hasher) Enabled() bool {
	return h.enabled
}
