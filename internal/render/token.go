package render

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// imageTokenLength is the hex length of a minted token. The hash input is the
// target URL plus a nanosecond timestamp; 32 hex characters (128 bits) keep
// collisions out of reach even under bursts that land in the same timestamp
// granularity, while staying short enough for a path segment.
const imageTokenLength = 32

// mintImageToken derives an opaque token for a screenshot blob. Tokens are
// not guessable from public information short of brute force over the hash
// space; the blob itself lives in the cache only for the render TTL.
func mintImageToken(url string, now time.Time) string {
	sum := sha256.Sum256([]byte(url + strconv.FormatInt(now.UnixNano(), 10)))
	return hex.EncodeToString(sum[:])[:imageTokenLength]
}
