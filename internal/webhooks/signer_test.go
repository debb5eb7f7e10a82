package webhooks

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignAndVerify(t *testing.T) {
	secret := "wh_test_secret"
	body := []byte(`{"event":"reservation.created","data":{"reservation_id":7}}`)

	signature := Sign(secret, body)
	assert.True(t, strings.HasPrefix(signature, "sha256="))
	assert.True(t, Verify(secret, body, signature))
}

func TestVerifyRejectsTampering(t *testing.T) {
	secret := "wh_test_secret"
	body := []byte(`{"event":"reservation.created"}`)
	signature := Sign(secret, body)

	assert.False(t, Verify(secret, []byte(`{"event":"reservation.cancelled"}`), signature))
	assert.False(t, Verify("other_secret", body, signature))
	assert.False(t, Verify(secret, body, "sha256=deadbeef"))
	assert.False(t, Verify(secret, body, "md5=abc"))
	assert.False(t, Verify(secret, body, "sha256=not-hex"))
}

func TestSignIsDeterministic(t *testing.T) {
	body := []byte("payload")
	assert.Equal(t, Sign("s", body), Sign("s", body))
	assert.NotEqual(t, Sign("s", body), Sign("t", body))
}
