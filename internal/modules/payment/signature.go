package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var (
	ErrSecretNotConfigured = errors.New("payment secret not configured")
	ErrInvalidSignature    = errors.New("invalid signature")
)

// Sign returns hex(HMAC-SHA256(secret, orderID + "|" + paymentID)), the proof the gateway
// hands the client after checkout.
func Sign(orderID, paymentID, secret string) string {
	return hmacHex([]byte(orderID+"|"+paymentID), secret)
}

// Verify reports whether signature is the exact proof for the pair. The comparison is
// constant-time and case-sensitive.
func Verify(orderID, paymentID, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(Sign(orderID, paymentID, secret)))
}

// SignWebhook signs a raw webhook body with the webhook secret.
func SignWebhook(body []byte, secret string) string {
	return hmacHex(body, secret)
}

func VerifyWebhook(body []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(SignWebhook(body, secret)))
}

func hmacHex(msg []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verifier binds the two gateway secrets. A missing secret is a configuration error, never
// a skipped check.
type Verifier struct {
	keySecret     string
	webhookSecret string
}

func NewVerifier(keySecret, webhookSecret string) *Verifier {
	return &Verifier{keySecret: keySecret, webhookSecret: webhookSecret}
}

func (v *Verifier) VerifyPayment(orderID, paymentID, signature string) error {
	if v.keySecret == "" {
		return ErrSecretNotConfigured
	}
	if !Verify(orderID, paymentID, signature, v.keySecret) {
		return ErrInvalidSignature
	}
	return nil
}

func (v *Verifier) VerifyWebhook(body []byte, signature string) error {
	if v.webhookSecret == "" {
		return ErrSecretNotConfigured
	}
	if !VerifyWebhook(body, signature, v.webhookSecret) {
		return ErrInvalidSignature
	}
	return nil
}
