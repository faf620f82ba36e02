package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"stexs-auth/internal/domain"
)

type totpMethod struct {
	svc    *MFAService
	engine *TOTPEngine
}

func (m *totpMethod) Type() domain.MFAType { return domain.MFATypeTOTP }

func (m *totpMethod) Enroll(ctx context.Context, p domain.MFAProfile, _ string) (Enrollment, error) {
	if p.TOTPEnabled() {
		return Enrollment{}, ErrTOTPAlreadyEnabled
	}
	secret, err := m.engine.GenerateSecret()
	if err != nil {
		return Enrollment{}, fmt.Errorf("generate totp secret: %w", err)
	}
	err = m.svc.mutate(ctx, p.UserID, "set totp secret",
		func() (int64, error) { return m.svc.profiles.SetTOTPSecret(ctx, p.UserID, secret) },
		func(domain.MFAProfile) error { return ErrTOTPAlreadyEnabled },
	)
	if err != nil {
		return Enrollment{}, err
	}
	return Enrollment{Secret: secret, OTPAuthURI: m.engine.ProvisionURI(secret, p.Email)}, nil
}

// Verify completa la activacion iniciada por Enroll.
func (m *totpMethod) Verify(ctx context.Context, p domain.MFAProfile, code string) error {
	if p.TOTPEnabled() {
		return ErrTOTPAlreadyVerified
	}
	if err := m.validate(p, code); err != nil {
		return err
	}
	return m.svc.mutate(ctx, p.UserID, "mark totp verified",
		func() (int64, error) { return m.svc.profiles.MarkTOTPVerified(ctx, p.UserID, m.svc.now().UTC()) },
		func(cur domain.MFAProfile) error {
			if cur.TOTPEnabled() {
				return ErrTOTPAlreadyVerified
			}
			return ErrInvalidCode
		},
	)
}

func (m *totpMethod) Disable(ctx context.Context, p domain.MFAProfile, code string) error {
	if !p.TOTPEnabled() {
		return ErrTOTPAlreadyDisabled
	}
	if !p.EmailEnabled {
		return ErrCannotDisableLastMethod
	}
	if err := m.validate(p, code); err != nil {
		return err
	}
	return m.svc.mutate(ctx, p.UserID, "disable totp",
		func() (int64, error) { return m.svc.profiles.DisableTOTP(ctx, p.UserID) },
		func(cur domain.MFAProfile) error {
			if !cur.TOTPEnabled() {
				return ErrTOTPAlreadyDisabled
			}
			return ErrCannotDisableLastMethod
		},
	)
}

func (m *totpMethod) Challenge(_ context.Context, p domain.MFAProfile, code string) error {
	if !p.TOTPEnabled() {
		return ErrTOTPDisabled
	}
	return m.validate(p, code)
}

func (m *totpMethod) validate(p domain.MFAProfile, code string) error {
	if p.TOTPSecret == "" {
		m.svc.logger.Debug("totp code presented without secret", zap.String("user_id", p.UserID))
		return ErrInvalidCode
	}
	ok, err := m.engine.Validate(p.TOTPSecret, code, m.svc.now())
	if err != nil {
		m.svc.logger.Error("totp validation failed", zap.Error(err), zap.String("user_id", p.UserID))
		return fmt.Errorf("validate totp: %w", err)
	}
	if !ok {
		m.svc.logger.Debug("invalid totp code", zap.String("user_id", p.UserID))
		return ErrInvalidCode
	}
	return nil
}

type emailMethod struct {
	svc *MFAService
}

func (m *emailMethod) Type() domain.MFAType { return domain.MFATypeEmail }

func (m *emailMethod) Enroll(ctx context.Context, p domain.MFAProfile, code string) (Enrollment, error) {
	if p.EmailEnabled {
		return Enrollment{}, ErrEmailMFAAlreadyEnabled
	}
	if err := m.svc.checkEmailCode(p, code); err != nil {
		return Enrollment{}, err
	}
	err := m.svc.mutate(ctx, p.UserID, "enable email mfa",
		func() (int64, error) { return m.svc.profiles.EnableEmail(ctx, p.UserID, p.EmailCode) },
		func(cur domain.MFAProfile) error {
			if cur.EmailEnabled {
				return ErrEmailMFAAlreadyEnabled
			}
			return ErrInvalidCode
		},
	)
	return Enrollment{}, err
}

// Verify no aplica a email: la activacion ya exige el codigo.
func (m *emailMethod) Verify(context.Context, domain.MFAProfile, string) error {
	return ErrUnsupportedType
}

func (m *emailMethod) Disable(ctx context.Context, p domain.MFAProfile, code string) error {
	if !p.EmailEnabled {
		return ErrEmailMFAAlreadyDisabled
	}
	if !p.TOTPEnabled() {
		return ErrCannotDisableLastMethod
	}
	if err := m.svc.checkEmailCode(p, code); err != nil {
		return err
	}
	return m.svc.mutate(ctx, p.UserID, "disable email mfa",
		func() (int64, error) { return m.svc.profiles.DisableEmail(ctx, p.UserID, p.EmailCode) },
		func(cur domain.MFAProfile) error {
			switch {
			case !cur.EmailEnabled:
				return ErrEmailMFAAlreadyDisabled
			case !cur.TOTPEnabled():
				return ErrCannotDisableLastMethod
			default:
				return ErrInvalidCode
			}
		},
	)
}

// Challenge consume el codigo: solo puede confirmar una operacion.
func (m *emailMethod) Challenge(ctx context.Context, p domain.MFAProfile, code string) error {
	if !p.EmailEnabled {
		return ErrEmailMFADisabled
	}
	if err := m.svc.checkEmailCode(p, code); err != nil {
		return err
	}
	return m.svc.mutate(ctx, p.UserID, "consume email code",
		func() (int64, error) { return m.svc.profiles.ConsumeEmailCode(ctx, p.UserID, p.EmailCode) },
		func(domain.MFAProfile) error { return ErrInvalidCode },
	)
}
