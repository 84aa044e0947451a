package dpm

import (
	"crypto/hmac"
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// Signer computes and checks the digests the Direct Post Method flow relies
// on. MD5 is not a choice: the gateway recomputes every value below with MD5
// and a byte-for-byte identical input string, so any deviation breaks the
// handshake.
type Signer struct {
	// LoginID is the merchant API login id (x_login).
	LoginID string
	// TransactionKey keys the fingerprint HMAC. Never leaves the server.
	TransactionKey string
	// HashSecret is the shared secret configured at the gateway, used for
	// the form digest and for validating relay callbacks.
	HashSecret string
}

// Fingerprint returns the one-time HMAC authorizing a single transaction for
// the given sequence/timestamp/amount tuple. The gateway recomputes the HMAC
// over login^sequence^timestamp^amount^ (trailing caret included) and rejects
// the post on any mismatch.
func (s Signer) Fingerprint(sequence, timestamp, amount string) string {
	mac := hmac.New(md5.New, []byte(s.TransactionKey))
	mac.Write([]byte(s.LoginID + "^" + sequence + "^" + timestamp + "^" + amount + "^"))
	return hex.EncodeToString(mac.Sum(nil))
}

// FormDigest returns the tamper-evident digest over the fields an order must
// not change between issuance and the relay callback. It doubles as the
// order id. extra comes from the integrator's field projection; avoid fields
// holding extended UTF-8 there, the gateway may mangle them in transit.
func (s Signer) FormDigest(sessionID, amount, timestamp, extra string) string {
	sum := md5.Sum([]byte(sessionID + "^" + s.HashSecret + "^" + amount + "^" + timestamp + "^" + extra))
	return hex.EncodeToString(sum[:])
}

// VerifyGatewayHash checks the x_MD5_Hash the gateway attaches to a relay
// callback. The gateway hashes secret+login+transID+amount and sends the
// digest uppercased; comparison is case-insensitive and constant time.
func (s Signer) VerifyGatewayHash(transID, amount, supplied string) bool {
	cleaned := strings.ToLower(strings.TrimSpace(supplied))
	if cleaned == "" {
		return false
	}
	sum := md5.Sum([]byte(s.HashSecret + s.LoginID + transID + amount))
	expected := hex.EncodeToString(sum[:])
	return hmac.Equal([]byte(expected), []byte(cleaned))
}
