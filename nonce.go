package searchbridge

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// nonceWindow bounds how long an issued key-exchange nonce stays valid.
// Verification accepts the current and the previous window, so actual
// validity is between one and two windows.
const nonceWindow = 10 * time.Minute

// issueNonce derives a nonce for the current time window from the site
// secret. Nonces are stateless: the same window always yields the same
// value, so no server-side storage is needed.
func issueNonce(secret []byte, now time.Time) string {
	return nonceAt(secret, now.Unix()/int64(nonceWindow.Seconds()))
}

// verifyNonce reports whether nonce matches the current or the previous
// window.
func verifyNonce(secret []byte, nonce string, now time.Time) bool {
	window := now.Unix() / int64(nonceWindow.Seconds())
	for _, w := range []int64{window, window - 1} {
		if hmac.Equal([]byte(nonce), []byte(nonceAt(secret, w))) {
			return true
		}
	}
	return false
}

func nonceAt(secret []byte, window int64) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte("exchange-nonce:" + strconv.FormatInt(window, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}
