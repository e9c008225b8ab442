package relay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func signPayload(key, timestamp, token string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(timestamp + token))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifierVerify(t *testing.T) {
	const key = "shared-relay-secret"
	v := NewVerifier(key, false)

	timestamp := "1700000000"
	token := "abcdef0123456789"
	sig := signPayload(key, timestamp, token)

	t.Run("正确签名通过", func(t *testing.T) {
		assert.True(t, v.Verify(timestamp, token, sig))
	})

	t.Run("时间戳被篡改则失败", func(t *testing.T) {
		assert.False(t, v.Verify("1700000001", token, sig))
	})

	t.Run("token被篡改则失败", func(t *testing.T) {
		assert.False(t, v.Verify(timestamp, "abcdef012345678X", sig))
	})

	t.Run("签名被篡改则失败", func(t *testing.T) {
		tampered := []byte(sig)
		if tampered[0] == '0' {
			tampered[0] = '1'
		} else {
			tampered[0] = '0'
		}
		assert.False(t, v.Verify(timestamp, token, string(tampered)))
	})

	t.Run("密钥不同则失败", func(t *testing.T) {
		other := NewVerifier("another-secret", false)
		assert.False(t, other.Verify(timestamp, token, sig))
	})

	t.Run("空签名失败", func(t *testing.T) {
		assert.False(t, v.Verify(timestamp, token, ""))
	})
}

func TestVerifierPermissive(t *testing.T) {
	assert.False(t, NewVerifier("k", false).Permissive())
	assert.True(t, NewVerifier("k", true).Permissive())
}

func TestSignatureIsZero(t *testing.T) {
	assert.True(t, Signature{}.IsZero())
	assert.False(t, Signature{Token: "t"}.IsZero())
}
