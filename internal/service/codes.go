package service

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

const emailCodeLength = 8

// generateCode devuelve un codigo hexadecimal en mayusculas de n caracteres.
func generateCode(n int) (string, error) {
	raw := make([]byte, (n+1)/2)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(raw))[:n], nil
}

// hashCode guarda el codigo como salt:sha256 para no persistirlo en claro.
func hashCode(code string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	saltStr := base64.StdEncoding.EncodeToString(salt)
	return saltStr + ":" + digestCode(saltStr, code), nil
}

func verifyCode(code, stored string) bool {
	saltStr, expected, ok := strings.Cut(stored, ":")
	if !ok || expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(digestCode(saltStr, code)), []byte(expected)) == 1
}

func digestCode(saltStr, code string) string {
	sum := sha256.Sum256([]byte(saltStr + ":" + normalizeCode(code)))
	return base64.StdEncoding.EncodeToString(sum[:])
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
