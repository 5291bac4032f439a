// Package crypto implements the HMAC scheme protecting outcome webhook
// deliveries.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// Header names carried by a signed webhook delivery.
const (
	HeaderTimestamp = "X-Pulse-Timestamp"
	HeaderSignature = "X-Pulse-Signature"
)

// DefaultMaxSkew bounds how far a delivery's timestamp may drift from the
// verifier's clock.
const DefaultMaxSkew = 5 * time.Minute

// WebhookAuth signs and verifies outcome webhook deliveries. The signature
// is HMAC-SHA256(secret, timestamp+"."+body) encoded as standard base64 and
// sent alongside the Unix timestamp it covers; binding the timestamp into
// the message bounds the replay window to MaxSkew.
type WebhookAuth struct {
	Secret  string
	MaxSkew time.Duration
}

// NewWebhookAuth returns a WebhookAuth with the default skew bound.
func NewWebhookAuth(secret string) *WebhookAuth {
	return &WebhookAuth{Secret: secret, MaxSkew: DefaultMaxSkew}
}

// Headers returns the HTTP headers for a signed delivery of body.
//
// Returned header keys:
//   - X-Pulse-Timestamp
//   - X-Pulse-Signature
func (w *WebhookAuth) Headers(body []byte) map[string]string {
	return w.HeadersAt(body, time.Now().Unix())
}

// HeadersAt is Headers with a caller-supplied Unix timestamp, for
// deterministic testing.
func (w *WebhookAuth) HeadersAt(body []byte, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)
	return map[string]string{
		HeaderTimestamp: ts,
		HeaderSignature: w.sign(ts, body),
	}
}

// Verify checks a delivery against the shared secret and the current clock.
func (w *WebhookAuth) Verify(timestamp string, body []byte, signature string) error {
	return w.VerifyAt(timestamp, body, signature, time.Now())
}

// VerifyAt is Verify against an explicit clock reading. The signature
// comparison is constant time.
func (w *WebhookAuth) VerifyAt(timestamp string, body []byte, signature string, now time.Time) error {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("crypto: bad webhook timestamp %q", timestamp)
	}
	if w.MaxSkew > 0 {
		skew := now.Sub(time.Unix(ts, 0))
		if skew > w.MaxSkew || skew < -w.MaxSkew {
			return fmt.Errorf("crypto: webhook timestamp outside the %s window", w.MaxSkew)
		}
	}
	want := w.sign(timestamp, body)
	if !hmac.Equal([]byte(want), []byte(signature)) {
		return fmt.Errorf("crypto: webhook signature mismatch")
	}
	return nil
}

// sign computes the delivery signature over timestamp and body.
func (w *WebhookAuth) sign(timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(w.Secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// String returns a redacted representation suitable for logging.
func (w *WebhookAuth) String() string {
	s := w.Secret
	if len(s) <= 4 {
		s = "****"
	} else {
		s = s[:4] + "****"
	}
	return fmt.Sprintf("WebhookAuth{secret=%s, max_skew=%s}", s, w.MaxSkew)
}
