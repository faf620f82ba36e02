package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"stexs-auth/internal/domain"
	"stexs-auth/internal/email"
	"stexs-auth/internal/repository"
)

// UserService coordina alta de usuarios y verificacion de email.
type UserService struct {
	logger          *zap.Logger
	users           repository.UserRepository
	profiles        repository.MFARepository
	tx              TxRunner
	emailSender     email.Sender
	verificationTTL time.Duration
	now             func() time.Time
}

func NewUserService(logger *zap.Logger, users repository.UserRepository, profiles repository.MFARepository, tx TxRunner, emailSender email.Sender, verificationTTL time.Duration) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tx == nil {
		tx = noTx{}
	}
	if verificationTTL <= 0 {
		verificationTTL = 10 * time.Minute
	}
	return &UserService{
		logger:          logger,
		users:           users,
		profiles:        profiles,
		tx:              tx,
		emailSender:     emailSender,
		verificationTTL: verificationTTL,
		now:             time.Now,
	}
}

type SignUpInput struct {
	Email    string
	Username string
	Password string
}

// SignUp crea la credencial y su perfil MFA vacio en una transaccion y envia
// el codigo de verificacion.
func (s *UserService) SignUp(ctx context.Context, input SignUpInput) (domain.UserCredential, error) {
	emailAddr := normalizeIdentifier(input.Email)
	username := strings.TrimSpace(input.Username)
	if emailAddr == "" || username == "" || input.Password == "" {
		return domain.UserCredential{}, ErrInvalidCredentials
	}

	for _, identifier := range []string{emailAddr, username} {
		_, exists, err := s.users.GetByIdentifier(ctx, identifier)
		if err != nil {
			return domain.UserCredential{}, fmt.Errorf("fetch user: %w", err)
		}
		if exists {
			return domain.UserCredential{}, ErrUserAlreadyExists
		}
	}

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.UserCredential{}, err
	}
	code, codeHash, err := newVerificationCode()
	if err != nil {
		return domain.UserCredential{}, err
	}

	now := s.now().UTC()
	user := domain.UserCredential{
		ID:                 uuid.NewString(),
		Email:              emailAddr,
		Username:           username,
		PasswordHash:       string(hashBytes),
		VerificationCode:   codeHash,
		VerificationSentAt: &now,
		CreatedAt:          now,
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.users.Create(ctx, user); err != nil {
			return err
		}
		return s.profiles.Create(ctx, user.ID)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return domain.UserCredential{}, ErrUserAlreadyExists
		}
		s.logger.Error("create user failed", zap.Error(err))
		return domain.UserCredential{}, fmt.Errorf("create user: %w", err)
	}

	if err := s.sendVerification(ctx, user.Email, code); err != nil {
		return domain.UserCredential{}, err
	}
	return user, nil
}

// VerifyEmail marca el email como verificado si el codigo es el vigente.
func (s *UserService) VerifyEmail(ctx context.Context, emailAddr, code string) error {
	user, err := s.lookup(ctx, emailAddr)
	if err != nil {
		return err
	}
	if user.EmailVerified() {
		return ErrEmailAlreadyVerified
	}
	if user.VerificationCode == "" || user.VerificationSentAt == nil || !verifyCode(code, user.VerificationCode) {
		return ErrVerificationCodeInvalid
	}
	if IsExpired(*user.VerificationSentAt, s.verificationTTL, s.now()) {
		return ErrVerificationCodeExpired
	}

	n, err := s.users.MarkEmailVerified(ctx, user.ID, user.VerificationCode, s.now().UTC())
	if err != nil {
		s.logger.Error("mark email verified failed", zap.Error(err), zap.String("user_id", user.ID))
		return fmt.Errorf("mark email verified: %w", err)
	}
	if n == 0 {
		return ErrVerificationCodeInvalid
	}
	return nil
}

// ResendVerification reemplaza el codigo pendiente y lo reenvia.
func (s *UserService) ResendVerification(ctx context.Context, emailAddr string) error {
	user, err := s.lookup(ctx, emailAddr)
	if err != nil {
		return err
	}
	if user.EmailVerified() {
		return ErrEmailAlreadyVerified
	}
	code, codeHash, err := newVerificationCode()
	if err != nil {
		return err
	}
	n, err := s.users.UpdateVerificationCode(ctx, user.ID, codeHash, s.now().UTC())
	if err != nil {
		s.logger.Error("update verification code failed", zap.Error(err), zap.String("user_id", user.ID))
		return fmt.Errorf("update verification code: %w", err)
	}
	if n == 0 {
		return ErrEmailAlreadyVerified
	}
	return s.sendVerification(ctx, user.Email, code)
}

func (s *UserService) lookup(ctx context.Context, emailAddr string) (domain.UserCredential, error) {
	emailAddr = normalizeIdentifier(emailAddr)
	if emailAddr == "" {
		return domain.UserCredential{}, ErrUserNotFound
	}
	user, ok, err := s.users.GetByIdentifier(ctx, emailAddr)
	if err != nil {
		return domain.UserCredential{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok || user.Email != emailAddr {
		return domain.UserCredential{}, ErrUserNotFound
	}
	return user, nil
}

func (s *UserService) sendVerification(ctx context.Context, to, code string) error {
	if s.emailSender == nil {
		return ErrEmailSendFailure
	}
	text := fmt.Sprintf("Your verification code is %s.\nIt expires in %d minutes.\n", code, int(s.verificationTTL.Minutes()))
	if err := s.emailSender.Send(ctx, to, "Verify your email", text); err != nil {
		s.logger.Warn("send verification code failed", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrEmailSendFailure, err)
	}
	return nil
}

func newVerificationCode() (string, string, error) {
	code, err := generateCode(emailCodeLength)
	if err != nil {
		return "", "", err
	}
	hash, err := hashCode(code)
	if err != nil {
		return "", "", err
	}
	return code, hash, nil
}
