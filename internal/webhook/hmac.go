package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// errVerification is the only error signature checks return, so responses
// and logs never reveal which part of the signature was wrong.
var errVerification = errors.New("webhook verification failed")

// verifyHMACSignature checks an HMAC-SHA256 signature over body.
// Accepted header forms are "sha256=<hex>" and bare "<hex>".
func verifyHMACSignature(body []byte, signature, secret string) error {
	if secret == "" || signature == "" {
		return errVerification
	}

	got, err := parseSignature(signature)
	if err != nil {
		return errVerification
	}
	// hmac.Equal is constant-time.
	if !hmac.Equal(signBody(body, secret), got) {
		return errVerification
	}
	return nil
}

func parseSignature(signature string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), "sha256="))
}

func signBody(body []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

// SignHMAC returns the "sha256=<hex>" header value for body. Senders of
// engagement events use it to sign their requests.
func SignHMAC(body []byte, secret string) string {
	return "sha256=" + hex.EncodeToString(signBody(body, secret))
}
