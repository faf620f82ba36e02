package service

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const totpSecretBytes = 20

var (
	errEmptyTOTPSecret      = errors.New("empty totp secret")
	errUnsupportedAlgorithm = errors.New("unsupported totp algorithm")
)

var totpEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// TOTPConfig parametriza el motor TOTP. Skew es la ventana en pasos a cada lado.
type TOTPConfig struct {
	Issuer    string
	Algorithm string
	Digits    int
	Period    int
	Skew      int
}

// TOTPEngine genera y valida codigos TOTP sin tocar el store.
type TOTPEngine struct {
	cfg TOTPConfig
}

func NewTOTPEngine(cfg TOTPConfig) *TOTPEngine {
	if cfg.Algorithm == "" {
		cfg.Algorithm = "SHA256"
	}
	if cfg.Digits <= 0 {
		cfg.Digits = 6
	}
	if cfg.Period <= 0 {
		cfg.Period = 30
	}
	if cfg.Skew < 0 {
		cfg.Skew = 0
	}
	return &TOTPEngine{cfg: cfg}
}

// GenerateSecret devuelve un secreto aleatorio en base32 sin padding.
func (e *TOTPEngine) GenerateSecret() (string, error) {
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return totpEncoding.EncodeToString(raw), nil
}

// ProvisionURI construye el otpauth:// para apps autenticadoras.
func (e *TOTPEngine) ProvisionURI(secret, account string) string {
	issuer := e.cfg.Issuer
	label := url.PathEscape(issuer + ":" + account)

	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", issuer)
	v.Set("period", strconv.Itoa(e.cfg.Period))
	v.Set("digits", strconv.Itoa(e.cfg.Digits))
	v.Set("algorithm", strings.ToUpper(e.cfg.Algorithm))

	return "otpauth://totp/" + label + "?" + v.Encode()
}

// Code calcula el codigo vigente en now.
func (e *TOTPEngine) Code(secret string, now time.Time) (string, error) {
	key, err := decodeTOTPSecret(secret)
	if err != nil {
		return "", err
	}
	return hotpCode(key, now.Unix()/int64(e.cfg.Period), e.cfg.Digits, e.cfg.Algorithm)
}

// Validate compara code contra los pasos dentro de la ventana, en tiempo constante.
func (e *TOTPEngine) Validate(secret, code string, now time.Time) (bool, error) {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) != e.cfg.Digits || !isNumeric(trimmed) {
		return false, nil
	}
	key, err := decodeTOTPSecret(secret)
	if err != nil {
		return false, err
	}

	base := now.Unix() / int64(e.cfg.Period)
	for step := -e.cfg.Skew; step <= e.cfg.Skew; step++ {
		counter := base + int64(step)
		if counter < 0 {
			continue
		}
		generated, err := hotpCode(key, counter, e.cfg.Digits, e.cfg.Algorithm)
		if err != nil {
			return false, err
		}
		if subtle.ConstantTimeCompare([]byte(generated), []byte(trimmed)) == 1 {
			return true, nil
		}
	}
	return false, nil
}

func decodeTOTPSecret(secret string) ([]byte, error) {
	secret = strings.ToUpper(strings.TrimRight(strings.TrimSpace(secret), "="))
	if secret == "" {
		return nil, errEmptyTOTPSecret
	}
	key, err := totpEncoding.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("decode totp secret: %w", err)
	}
	return key, nil
}

func hotpCode(secret []byte, counter int64, digits int, algorithm string) (string, error) {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	hf, err := hmacFunc(algorithm)
	if err != nil {
		return "", err
	}
	mac := hmac.New(hf, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, bin%mod), nil
}

func hmacFunc(algorithm string) (func() hash.Hash, error) {
	switch strings.ToUpper(algorithm) {
	case "SHA1":
		return sha1.New, nil
	case "", "SHA256":
		return sha256.New, nil
	case "SHA512":
		return sha512.New, nil
	default:
		return nil, errUnsupportedAlgorithm
	}
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
