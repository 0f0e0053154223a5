package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerify_ValidPairs(t *testing.T) {
	pairs := [][2]string{
		{"order_abc", "pay_xyz"},
		{"order_1", "pay_1"},
		{"", ""},
		{"order|pipe", "pay"},
		{"заказ", "платёж"},
	}
	for _, p := range pairs {
		sig := Sign(p[0], p[1], "s3cret")
		assert.True(t, Verify(p[0], p[1], sig, "s3cret"), "pair %v", p)
	}
}

func TestVerify_SingleCharacterMutation(t *testing.T) {
	sig := Sign("order_abc", "pay_xyz", "s3cret")
	for i := 0; i < len(sig); i++ {
		b := []byte(sig)
		if b[i] == '0' {
			b[i] = '1'
		} else {
			b[i] = '0'
		}
		assert.False(t, Verify("order_abc", "pay_xyz", string(b), "s3cret"), "mutation at %d", i)
	}
}

func TestVerify_CaseSensitive(t *testing.T) {
	sig := Sign("order_abc", "pay_xyz", "s3cret")
	upper := []byte(sig)
	for i, c := range upper {
		if c >= 'a' && c <= 'f' {
			upper[i] = c - 32
			break
		}
	}
	assert.False(t, Verify("order_abc", "pay_xyz", string(upper), "s3cret"))
}

func TestVerify_WrongSecretOrPair(t *testing.T) {
	sig := Sign("order_abc", "pay_xyz", "s3cret")
	assert.False(t, Verify("order_abc", "pay_xyz", sig, "other"))
	assert.False(t, Verify("order_abc", "pay_xyy", sig, "s3cret"))
	assert.False(t, Verify("order_abc", "pay_xyz", sig, ""))
	assert.False(t, Verify("order_abc", "pay_xyz", "", "s3cret"))
}

func TestSign_Deterministic(t *testing.T) {
	sig := Sign("order_abc", "pay_xyz", "key")
	assert.Len(t, sig, 64)
	assert.Equal(t, sig, Sign("order_abc", "pay_xyz", "key"))
	assert.NotEqual(t, sig, Sign("order_abcpay_xyz", "", "key"))
}

func TestVerifier(t *testing.T) {
	v := NewVerifier("key", "hook")
	assert.NoError(t, v.VerifyPayment("o", "p", Sign("o", "p", "key")))
	assert.ErrorIs(t, v.VerifyPayment("o", "p", "deadbeef"), ErrInvalidSignature)

	body := []byte(`{"event":"payment.captured"}`)
	assert.NoError(t, v.VerifyWebhook(body, SignWebhook(body, "hook")))
	assert.ErrorIs(t, v.VerifyWebhook(body, SignWebhook(body, "key")), ErrInvalidSignature)

	empty := NewVerifier("", "")
	assert.ErrorIs(t, empty.VerifyPayment("o", "p", Sign("o", "p", "")), ErrSecretNotConfigured)
	assert.ErrorIs(t, empty.VerifyWebhook(body, "x"), ErrSecretNotConfigured)
}
