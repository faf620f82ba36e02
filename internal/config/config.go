package config

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	Env         string `env:"ENV" envDefault:"production"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"false"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPass     string `env:"SMTP_PASS"`
	SMTPFrom     string `env:"SMTP_FROM"`
	SMTPFromName string `env:"SMTP_FROM_NAME"`
	SMTPUseTLS   bool   `env:"SMTP_USE_TLS" envDefault:"false"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	AccessTokenSecret        string `env:"ACCESS_TOKEN_SECRET,required"`
	RefreshTokenSecret       string `env:"REFRESH_TOKEN_SECRET,required"`
	SignInConfirmTokenSecret string `env:"SIGN_IN_CONFIRM_TOKEN_SECRET,required"`
	Issuer                   string `env:"ISSUER" envDefault:"stexs-auth"`
	Audience                 string `env:"AUDIENCE" envDefault:"stexs"`

	JWTExpiryLimit                  int `env:"JWT_EXPIRY_LIMIT" envDefault:"3600"`
	JWTAuthorizationCodeExpiryLimit int `env:"JWT_AUTHORIZATION_CODE_EXPIRY_LIMIT" envDefault:"3600"`
	JWTSignInConfirmExpiryLimit     int `env:"JWT_EXPIRY_SIGN_IN_CONFIRM_LIMIT" envDefault:"600"`
	JWTRefreshExpiryLimit           int `env:"JWT_REFRESH_EXPIRY_LIMIT" envDefault:"2592000"`

	AuthorizationCodeExpiration     int `env:"AUTHORIZATION_CODE_EXPIRATION" envDefault:"300"`
	MFAEmailCodeExpiration          int `env:"MFA_EMAIL_CODE_EXPIRATION" envDefault:"300"`
	EmailVerificationCodeExpiration int `env:"EMAIL_VERIFICATION_CODE_EXPIRATION" envDefault:"600"`

	ServiceName   string `env:"SERVICE_NAME" envDefault:"stexs"`
	TOTPAlgorithm string `env:"TOTP_ALGORITHM" envDefault:"SHA256"`
	TOTPDigits    int    `env:"TOTP_DIGITS" envDefault:"6"`
	TOTPPeriod    int    `env:"TOTP_PERIOD" envDefault:"30"`
	TOTPSkew      int    `env:"TOTP_SKEW" envDefault:"1"`

	RateLimitSignInPoints     int `env:"RATE_LIMIT_SIGN_IN_POINTS" envDefault:"5"`
	RateLimitSignInDuration   int `env:"RATE_LIMIT_SIGN_IN_DURATION" envDefault:"300"`
	RateLimitEmailPoints      int `env:"RATE_LIMIT_EMAIL_POINTS" envDefault:"1"`
	RateLimitEmailDuration    int `env:"RATE_LIMIT_EMAIL_DURATION" envDefault:"60"`
	RateLimitSecurityPoints   int `env:"RATE_LIMIT_SECURITY_POINTS" envDefault:"5"`
	RateLimitSecurityDuration int `env:"RATE_LIMIT_SECURITY_DURATION" envDefault:"600"`
}

var ErrSharedSigningKey = errors.New("access, refresh and sign-in confirm secrets must be distinct")

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate verifica invariantes que las etiquetas env no pueden expresar.
func (c *Config) Validate() error {
	if c.AccessTokenSecret == c.RefreshTokenSecret ||
		c.AccessTokenSecret == c.SignInConfirmTokenSecret ||
		c.RefreshTokenSecret == c.SignInConfirmTokenSecret {
		return ErrSharedSigningKey
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func (c *Config) AccessTokenTTL() time.Duration       { return seconds(c.JWTExpiryLimit) }
func (c *Config) OAuth2AccessTokenTTL() time.Duration { return seconds(c.JWTAuthorizationCodeExpiryLimit) }
func (c *Config) SignInConfirmTTL() time.Duration     { return seconds(c.JWTSignInConfirmExpiryLimit) }
func (c *Config) RefreshTokenTTL() time.Duration      { return seconds(c.JWTRefreshExpiryLimit) }
func (c *Config) AuthorizationCodeTTL() time.Duration { return seconds(c.AuthorizationCodeExpiration) }
func (c *Config) MFAEmailCodeTTL() time.Duration      { return seconds(c.MFAEmailCodeExpiration) }

func (c *Config) EmailVerificationCodeTTL() time.Duration {
	return seconds(c.EmailVerificationCodeExpiration)
}
