package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// deriveAccountID implements the account id derivation rules: prefer the
// id_token's sub claim (no signature check — the id-token is only used for
// identification here, never as a bearer credential), then a hash of the
// refresh-token prefix, then a random id with a generated label.
func deriveAccountID(idToken, refreshToken string) (accountID, label string) {
	if sub, ok := subFromIDToken(idToken); ok && sub != "" {
		return sub, ""
	}
	if refreshToken != "" {
		sum := sha256.Sum256([]byte(refreshToken[:min(len(refreshToken), 24)]))
		return base64.RawURLEncoding.EncodeToString(sum[:8]), ""
	}
	buf := make([]byte, 6)
	_, _ = rand.Read(buf)
	id := base64.RawURLEncoding.EncodeToString(buf)
	return id, fmt.Sprintf("Account %s", id[:6])
}

// subFromIDToken extracts the sub claim from a JWT's payload segment
// without verifying its signature.
func subFromIDToken(idToken string) (string, bool) {
	parts := strings.Split(idToken, ".")
	if len(parts) != 3 {
		return "", false
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", false
	}
	var claims struct {
		Sub string `json:"sub"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return "", false
	}
	return claims.Sub, claims.Sub != ""
}
