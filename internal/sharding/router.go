// Package sharding maps logical keys to shard indices and owns the
// shard-qualified identifier formats embedded in issued tokens and sessions.
//
// Shard counts are process-wide configuration. Changing a shard count without
// migrating existing records is a breaking change: every previously issued
// identifier embeds the shard index it was routed to and would no longer
// resolve.
package sharding

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Default shard counts. These must stay bit-compatible with identifiers
// already in the wild.
const (
	DefaultSessionShards = 32
	DefaultRefreshShards = 8
)

// SessionShard routes session and authorization-code keys. FNV-1a is cheap
// and the key material is opaque to clients, so a non-cryptographic hash is
// sufficient here.
func SessionShard(key string, shardCount uint32) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32() % shardCount
}

// TokenShard routes refresh-token family keys. A cryptographic hash of
// "userID:clientID" prevents guessing the shard index from token content.
func TokenShard(userID, clientID string, shardCount uint32) uint32 {
	sum := sha256.Sum256([]byte(userID + ":" + clientID))
	return uint32(binary.BigEndian.Uint64(sum[:8]) % uint64(shardCount))
}

// FormatSessionID builds a shard-qualified session id:
// "{shard}_session_{suffix}". The shard index is derived from the suffix via
// SessionShard so the id self-describes its routing.
func FormatSessionID(shard uint32, suffix string) string {
	return fmt.Sprintf("%d_session_%s", shard, suffix)
}

// ParseSessionID extracts the shard index encoded in a session id.
func ParseSessionID(id string) (uint32, error) {
	idx := strings.Index(id, "_session_")
	if idx <= 0 || idx+len("_session_") >= len(id) {
		return 0, fmt.Errorf("malformed session id")
	}
	shard, err := strconv.ParseUint(id[:idx], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("malformed session id shard prefix: %w", err)
	}
	return uint32(shard), nil
}

// NewJTI builds a refresh-token link identifier:
// "v{generation}_{shardIndex}_{randomPart}".
func NewJTI(generation int64, shard uint32) string {
	return fmt.Sprintf("v%d_%d_%s", generation, shard, uuid.NewString())
}

// ParseJTI extracts the generation encoded in a jti. Legacy identifiers
// ("rt_{uuid}" or a bare uuid) predate versioned jtis and parse as
// generation 0.
func ParseJTI(jti string) (generation int64, legacy bool, err error) {
	if strings.HasPrefix(jti, "rt_") {
		return 0, true, nil
	}
	if _, uuidErr := uuid.Parse(jti); uuidErr == nil {
		return 0, true, nil
	}
	if !strings.HasPrefix(jti, "v") {
		return 0, false, fmt.Errorf("malformed jti")
	}
	parts := strings.SplitN(jti[1:], "_", 3)
	if len(parts) != 3 {
		return 0, false, fmt.Errorf("malformed jti")
	}
	gen, parseErr := strconv.ParseInt(parts[0], 10, 64)
	if parseErr != nil {
		return 0, false, fmt.Errorf("malformed jti generation: %w", parseErr)
	}
	return gen, false, nil
}

// NewKeyID builds a time-ordered signing-key id: "key-{unixMilli}-{suffix}".
func NewKeyID(unixMilli int64) string {
	suffix := strings.Split(uuid.NewString(), "-")[0]
	return fmt.Sprintf("key-%d-%s", unixMilli, suffix)
}
