package handlers

import (
	"strings"

	"github.com/google/go-github/v72/github"
)

const sha1Prefix = "sha1="

// VerifySignature reports whether header is the X-Hub-Signature GitHub computes
// for body: "sha1=" followed by the hex HMAC-SHA1 of the raw body keyed with
// secret. body must be the bytes as received, not a re-encoding.
func VerifySignature(body []byte, secret, header string) bool {
	// GitHub sends lowercase hex; anything else is not the exact digest string.
	if !strings.HasPrefix(header, sha1Prefix) || strings.ToLower(header) != header {
		return false
	}
	// ValidateSignature compares with hmac.Equal
	return github.ValidateSignature(header, body, []byte(secret)) == nil
}
