package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"stexs-auth/internal/domain"
	"stexs-auth/internal/email"
	"stexs-auth/internal/repository"
)

// MFAMethod es una variante de segundo factor. Cada operacion recibe el perfil
// ya leido; las mutaciones se confirman con actualizaciones condicionales.
type MFAMethod interface {
	Type() domain.MFAType
	Enroll(ctx context.Context, profile domain.MFAProfile, code string) (Enrollment, error)
	Verify(ctx context.Context, profile domain.MFAProfile, code string) error
	Disable(ctx context.Context, profile domain.MFAProfile, code string) error
	Challenge(ctx context.Context, profile domain.MFAProfile, code string) error
}

// Enrollment es la respuesta de activar un metodo. Email no devuelve datos.
type Enrollment struct {
	Secret     string `json:"secret,omitempty"`
	OTPAuthURI string `json:"otpAuthUri,omitempty"`
}

type MFAConfig struct {
	EmailCodeTTL time.Duration
}

// MFAService despacha operaciones al metodo correspondiente.
type MFAService struct {
	profiles     repository.MFARepository
	sender       email.Sender
	logger       *zap.Logger
	now          func() time.Time
	emailCodeTTL time.Duration
	methods      map[domain.MFAType]MFAMethod
}

func NewMFAService(cfg MFAConfig, profiles repository.MFARepository, totp *TOTPEngine, sender email.Sender, logger *zap.Logger) *MFAService {
	if cfg.EmailCodeTTL <= 0 {
		cfg.EmailCodeTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &MFAService{
		profiles:     profiles,
		sender:       sender,
		logger:       logger,
		now:          time.Now,
		emailCodeTTL: cfg.EmailCodeTTL,
	}
	s.methods = map[domain.MFAType]MFAMethod{
		domain.MFATypeTOTP:  &totpMethod{svc: s, engine: totp},
		domain.MFATypeEmail: &emailMethod{svc: s},
	}
	return s
}

func (s *MFAService) method(t domain.MFAType) (MFAMethod, error) {
	m, ok := s.methods[t]
	if !ok {
		return nil, ErrUnsupportedType
	}
	return m, nil
}

// Profile lee el perfil; su ausencia es un fallo de consistencia del store.
func (s *MFAService) Profile(ctx context.Context, userID string) (domain.MFAProfile, error) {
	p, ok, err := s.profiles.Get(ctx, userID)
	if err != nil {
		s.logger.Error("fetch mfa profile failed", zap.Error(err), zap.String("user_id", userID))
		return domain.MFAProfile{}, fmt.Errorf("fetch mfa profile: %w", err)
	}
	if !ok {
		s.logger.Error("mfa profile missing", zap.String("user_id", userID))
		return domain.MFAProfile{}, ErrMFAProfileNotFound
	}
	return p, nil
}

func (s *MFAService) Status(ctx context.Context, userID string) (domain.MFAStatus, error) {
	p, err := s.Profile(ctx, userID)
	if err != nil {
		return domain.MFAStatus{}, err
	}
	return p.Status(), nil
}

func (s *MFAService) ActiveTypes(ctx context.Context, userID string) ([]domain.MFAType, error) {
	p, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return p.ActiveTypes(), nil
}

func (s *MFAService) Enable(ctx context.Context, userID string, t domain.MFAType, code string) (Enrollment, error) {
	m, p, err := s.resolve(ctx, userID, t)
	if err != nil {
		return Enrollment{}, err
	}
	return m.Enroll(ctx, p, code)
}

func (s *MFAService) Verify(ctx context.Context, userID string, t domain.MFAType, code string) error {
	m, p, err := s.resolve(ctx, userID, t)
	if err != nil {
		return err
	}
	return m.Verify(ctx, p, code)
}

func (s *MFAService) Disable(ctx context.Context, userID string, t domain.MFAType, code string) error {
	m, p, err := s.resolve(ctx, userID, t)
	if err != nil {
		return err
	}
	return m.Disable(ctx, p, code)
}

// Challenge valida un codigo de un metodo activo para confirmar una operacion.
func (s *MFAService) Challenge(ctx context.Context, userID string, t domain.MFAType, code string) error {
	m, p, err := s.resolve(ctx, userID, t)
	if err != nil {
		return err
	}
	return m.Challenge(ctx, p, code)
}

// SendCode genera un codigo de email, guarda su hash y lo envia.
func (s *MFAService) SendCode(ctx context.Context, userID string) error {
	p, err := s.Profile(ctx, userID)
	if err != nil {
		return err
	}
	code, err := generateCode(emailCodeLength)
	if err != nil {
		return err
	}
	hash, err := hashCode(code)
	if err != nil {
		return err
	}
	n, err := s.profiles.SetEmailCode(ctx, userID, hash, s.now().UTC())
	if err != nil {
		s.logger.Error("store mfa email code failed", zap.Error(err), zap.String("user_id", userID))
		return fmt.Errorf("store mfa email code: %w", err)
	}
	if n == 0 {
		return ErrMFAProfileNotFound
	}
	if s.sender == nil {
		return ErrEmailSendFailure
	}
	text := fmt.Sprintf("Your confirmation code is %s.\nIt expires in %d minutes.\n", code, int(s.emailCodeTTL.Minutes()))
	if err := s.sender.Send(ctx, p.Email, "Confirmation code", text); err != nil {
		s.logger.Error("send mfa email code failed", zap.Error(err), zap.String("user_id", userID))
		return fmt.Errorf("%w: %v", ErrEmailSendFailure, err)
	}
	return nil
}

func (s *MFAService) resolve(ctx context.Context, userID string, t domain.MFAType) (MFAMethod, domain.MFAProfile, error) {
	m, err := s.method(t)
	if err != nil {
		return nil, domain.MFAProfile{}, err
	}
	p, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, domain.MFAProfile{}, err
	}
	return m, p, nil
}

// mutate ejecuta una actualizacion condicional; con cero filas relee el perfil
// y deja que classify elija el rechazo preciso.
func (s *MFAService) mutate(ctx context.Context, userID, op string, fn func() (int64, error), classify func(domain.MFAProfile) error) error {
	n, err := fn()
	if err != nil {
		s.logger.Error("mfa update failed", zap.Error(err), zap.String("user_id", userID), zap.String("op", op))
		return fmt.Errorf("%s: %w", op, err)
	}
	if n > 0 {
		return nil
	}
	p, err := s.Profile(ctx, userID)
	if err != nil {
		return err
	}
	return classify(p)
}

// checkEmailCode compara el codigo presentado con el hash guardado y su ventana.
func (s *MFAService) checkEmailCode(p domain.MFAProfile, code string) error {
	if p.EmailCode == "" || p.EmailCodeSentAt == nil || !verifyCode(code, p.EmailCode) {
		s.logger.Debug("invalid mfa email code", zap.String("user_id", p.UserID))
		return ErrInvalidCode
	}
	if IsExpired(*p.EmailCodeSentAt, s.emailCodeTTL, s.now()) {
		s.logger.Debug("mfa email code expired", zap.String("user_id", p.UserID))
		return ErrMFACodeExpired
	}
	return nil
}
