package relay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Signature 承载中继附带的验签材料。
type Signature struct {
	Timestamp string `json:"timestamp"`
	Token     string `json:"token"`
	Signature string `json:"signature"`
}

// IsZero 判断是否完全缺失验签材料。
func (s Signature) IsZero() bool {
	return s.Timestamp == "" && s.Token == "" && s.Signature == ""
}

// Verifier 校验中继 webhook 的 HMAC 签名。
type Verifier struct {
	key        []byte
	permissive bool
}

// NewVerifier 创建验签器。
//
// permissive 为 true 时调用方应在验签失败后仅记录警告并继续处理，
// 该模式只用于本地测试，默认配置下必须拒绝未通过验签的请求。
func NewVerifier(signingKey string, permissive bool) *Verifier {
	return &Verifier{
		key:        []byte(signingKey),
		permissive: permissive,
	}
}

// Permissive 返回是否处于宽容模式。
func (v *Verifier) Permissive() bool {
	return v.permissive
}

// Verify 校验签名。
//
// 期望值为 hex(HMAC-SHA256(key, timestamp+token))，
// 与收到的签名做常数时间比较。
func (v *Verifier) Verify(timestamp, token, signature string) bool {
	mac := hmac.New(sha256.New, v.key)
	mac.Write([]byte(timestamp + token))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
