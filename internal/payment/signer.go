package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Signer 计算并校验网关回调签名：hex(HMAC-SHA256(secret, orderID|paymentID))。
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

func (s *Signer) Sign(gatewayOrderID, paymentID string) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(gatewayOrderID + "|" + paymentID))
	return hex.EncodeToString(h.Sum(nil))
}

// Verify 常量时间比较，避免按字节提前返回。
func (s *Signer) Verify(gatewayOrderID, paymentID, signature string) bool {
	expected := s.Sign(gatewayOrderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}
