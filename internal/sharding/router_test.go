package sharding

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionShard_DeterministicAndInRange(t *testing.T) {
	for _, count := range []uint32{1, 8, 32, 100} {
		for i := 0; i < 50; i++ {
			key := fmt.Sprintf("session-key-%d", i)
			first := SessionShard(key, count)
			assert.Less(t, first, count)
			for j := 0; j < 5; j++ {
				assert.Equal(t, first, SessionShard(key, count))
			}
		}
	}
}

func TestSessionShard_SpreadsKeys(t *testing.T) {
	const count = 32
	seen := make(map[uint32]bool)
	for i := 0; i < 1000; i++ {
		seen[SessionShard(uuid.NewString(), count)] = true
	}
	// A uniform hash over 1000 keys reaches every one of 32 buckets.
	assert.Len(t, seen, count)
}

func TestTokenShard_DeterministicAndInRange(t *testing.T) {
	for _, count := range []uint32{1, 8, 64} {
		for i := 0; i < 50; i++ {
			user := fmt.Sprintf("user-%d", i)
			first := TokenShard(user, "client-a", count)
			assert.Less(t, first, count)
			assert.Equal(t, first, TokenShard(user, "client-a", count))
		}
	}
}

func TestTokenShard_DistinguishesClients(t *testing.T) {
	const count = 8
	a := make([]uint32, 0, 100)
	differs := false
	for i := 0; i < 100; i++ {
		user := fmt.Sprintf("user-%d", i)
		a = append(a, TokenShard(user, "client-a", count))
		if TokenShard(user, "client-b", count) != a[i] {
			differs = true
		}
	}
	assert.True(t, differs, "client id must contribute to routing")
}

func TestSessionID_RoundTrip(t *testing.T) {
	suffix := uuid.NewString()
	id := FormatSessionID(17, suffix)
	assert.Equal(t, fmt.Sprintf("17_session_%s", suffix), id)

	shard, err := ParseSessionID(id)
	require.NoError(t, err)
	assert.Equal(t, uint32(17), shard)
}

func TestParseSessionID_Malformed(t *testing.T) {
	for _, id := range []string{
		"",
		"no-marker",
		"_session_abc",
		"x_session_abc",
		"5_session_",
		"-1_session_abc",
	} {
		_, err := ParseSessionID(id)
		assert.Error(t, err, "id %q", id)
	}
}

func TestNewJTI_Format(t *testing.T) {
	jti := NewJTI(4, 3)
	assert.Regexp(t, `^v4_3_[0-9a-f-]{36}$`, jti)

	gen, legacy, err := ParseJTI(jti)
	require.NoError(t, err)
	assert.False(t, legacy)
	assert.Equal(t, int64(4), gen)
}

func TestParseJTI_LegacyForms(t *testing.T) {
	gen, legacy, err := ParseJTI("rt_" + uuid.NewString())
	require.NoError(t, err)
	assert.True(t, legacy)
	assert.Zero(t, gen)

	gen, legacy, err = ParseJTI(uuid.NewString())
	require.NoError(t, err)
	assert.True(t, legacy)
	assert.Zero(t, gen)
}

func TestParseJTI_Malformed(t *testing.T) {
	for _, jti := range []string{"", "vX_1_abc", "v1_only", "bogus"} {
		_, _, err := ParseJTI(jti)
		assert.Error(t, err, "jti %q", jti)
	}
}

func TestNewKeyID_Format(t *testing.T) {
	kid := NewKeyID(1700000000000)
	assert.Regexp(t, `^key-1700000000000-[0-9a-f]{8}$`, kid)
	assert.NotEqual(t, kid, NewKeyID(1700000000000))
}
