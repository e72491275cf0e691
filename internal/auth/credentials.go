// Package auth verifies operator credentials, issues sessions and checks
// the external API key.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"

	"golang.org/x/crypto/bcrypt"
)

// Verifier checks a username/password pair against one configured
// identity and its bcrypt hash.
type Verifier struct {
	user     string
	passHash []byte
}

// NewVerifier creates a verifier. With an empty user or hash every login fails.
func NewVerifier(user, passHash string) *Verifier {
	return &Verifier{user: user, passHash: []byte(passHash)}
}

// Configured reports whether an operator identity is set.
func (v *Verifier) Configured() bool {
	return v.user != "" && len(v.passHash) > 0
}

// Verify reports whether username and password match.
func (v *Verifier) Verify(username, password string) bool {
	if !v.Configured() {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(username), []byte(v.user)) != 1 {
		return false
	}
	return bcrypt.CompareHashAndPassword(v.passHash, []byte(password)) == nil
}

// HashPassword returns a bcrypt hash suitable for the admin_pass_hash setting.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// KeyMatches compares a provided API key with the expected one in
// constant time over their SHA-256 digests.
func KeyMatches(provided, expected string) bool {
	if expected == "" {
		return false
	}
	p := sha256.Sum256([]byte(provided))
	e := sha256.Sum256([]byte(expected))
	return subtle.ConstantTimeCompare(p[:], e[:]) == 1
}
