package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"math/big"
	"strconv"
	"time"

	"github.com/alexedwards/argon2id"

	"github.com/vitalab/vitalab-backend/internal/domain"
	"github.com/vitalab/vitalab-backend/internal/platform/auth"
	"github.com/vitalab/vitalab-backend/internal/platform/kv"
	"github.com/vitalab/vitalab-backend/internal/platform/sms"
	"github.com/vitalab/vitalab-backend/internal/repo/postgres"
	"github.com/vitalab/vitalab-backend/pkg/config"
	"github.com/vitalab/vitalab-backend/pkg/events"
	"github.com/vitalab/vitalab-backend/pkg/logger"
)

type LoginResult struct {
	User        *domain.UserInfo
	AccessToken string
	ExpiresIn   int64
}

type AuthService interface {
	// IssueCode validates the phone, claims a rate-limit slot, dispatches a
	// fresh 6-digit code and stores it for 5 minutes.
	IssueCode(ctx context.Context, phone string) (string, error)
	// VerifyCode consumes a matching code (single use) and resolves or
	// creates the user for first logins.
	VerifyCode(ctx context.Context, phone, code string) (*LoginResult, error)
	// PasswordLogin authenticates an existing account by phone + password.
	PasswordLogin(ctx context.Context, phone, password string) (*LoginResult, error)
}

type authService struct {
	store   kv.Store
	limiter *RateLimiter
	gateway sms.Gateway
	users   postgres.UsersRepo
	bus     events.Publisher
	cfg     *config.Config

	now          func() time.Time
	generateCode func() (string, error)
}

func NewAuthService(
	store kv.Store,
	limiter *RateLimiter,
	gateway sms.Gateway,
	users postgres.UsersRepo,
	bus events.Publisher,
	cfg *config.Config,
) AuthService {
	return &authService{
		store:        store,
		limiter:      limiter,
		gateway:      gateway,
		users:        users,
		bus:          bus,
		cfg:          cfg,
		now:          time.Now,
		generateCode: generateCode,
	}
}

func (s *authService) IssueCode(ctx context.Context, phone string) (string, error) {
	if phone == "" {
		return "", domain.E(domain.ErrInvalidParams, "手机号不能为空")
	}
	if !domain.IsValidPhone(phone) {
		return "", domain.E(domain.ErrInvalidParams, "手机号格式不正确")
	}

	reservation, err := s.limiter.Reserve(ctx, phone)
	if err != nil {
		return "", err
	}

	code, err := s.generateCode()
	if err != nil {
		reservation.Release(ctx)
		return "", domain.Wrap(domain.ErrServerError, "发送验证码失败，请稍后重试", err)
	}

	// Dispatch before any code write: a failed send must leave no trace.
	if err := s.gateway.SendVerificationCode(ctx, phone, code); err != nil {
		reservation.Release(ctx)
		logger.ErrorContext(ctx, "SMS dispatch failed", "error", err, "phone", phone)
		return "", domain.Wrap(domain.ErrGatewayFailure, "短信发送失败", err)
	}

	// Overwrites any earlier live code for this phone.
	if err := s.store.SetEX(ctx, codeKey(phone), code, codeTTL); err != nil {
		logger.ErrorContext(ctx, "Failed to store verification code", "error", err, "phone", phone)
		return "", domain.Wrap(domain.ErrServerError, "发送验证码失败，请稍后重试", err)
	}

	if err := s.bus.Publish(ctx, events.SubjectCodeSent, events.CodeSent{
		PhoneNumber: phone,
		SentAt:      s.now(),
	}); err != nil {
		logger.WarnContext(ctx, "Failed to publish code_sent event", "error", err)
	}

	return "验证码已发送", nil
}

func (s *authService) VerifyCode(ctx context.Context, phone, code string) (*LoginResult, error) {
	if phone == "" {
		return nil, domain.E(domain.ErrInvalidParams, "手机号不能为空")
	}
	if code == "" {
		return nil, domain.E(domain.ErrInvalidParams, "验证码不能为空")
	}
	if !domain.IsValidPhone(phone) {
		return nil, domain.E(domain.ErrInvalidParams, "手机号格式不正确")
	}
	if !domain.IsValidCode(code) {
		return nil, domain.E(domain.ErrInvalidParams, "验证码应为6位数字")
	}

	// Atomic compare-and-delete: a match consumes the code exactly once,
	// a mismatch leaves it in place for further attempts until TTL.
	result, err := s.store.CompareAndDelete(ctx, codeKey(phone), code)
	if err != nil {
		return nil, domain.Wrap(domain.ErrServerError, "验证失败，请稍后重试", err)
	}
	switch result {
	case kv.CompareMissing:
		return nil, domain.E(domain.ErrCodeExpired, "验证码已过期或不存在")
	case kv.CompareMismatch:
		return nil, domain.E(domain.ErrCodeInvalid, "验证码错误")
	}

	user, err := s.resolveUser(ctx, phone)
	if err != nil {
		return nil, err
	}

	return s.login(ctx, user, "sms_code")
}

func (s *authService) PasswordLogin(ctx context.Context, phone, password string) (*LoginResult, error) {
	if !domain.IsValidPhone(phone) {
		return nil, domain.E(domain.ErrInvalidParams, "手机号格式不正确")
	}
	if password == "" {
		return nil, domain.E(domain.ErrInvalidParams, "密码不能为空")
	}

	user, err := s.users.FindActiveByPhone(ctx, phone)
	if err != nil {
		return nil, domain.Wrap(domain.ErrServerError, "登录失败，请稍后重试", err)
	}
	if user == nil {
		// Same message for unknown phone and wrong password.
		return nil, domain.E(domain.ErrUnauthorized, "手机号或密码错误")
	}

	match, err := argon2id.ComparePasswordAndHash(password, user.PasswordHash)
	if err != nil || !match {
		return nil, domain.E(domain.ErrUnauthorized, "手机号或密码错误")
	}

	return s.login(ctx, user, "password")
}

// resolveUser finds the active account for phone or registers one on first
// login, with a nickname derived from the last 4 digits and a random
// unusable password.
func (s *authService) resolveUser(ctx context.Context, phone string) (*domain.User, error) {
	user, err := s.users.FindActiveByPhone(ctx, phone)
	if err != nil {
		return nil, domain.Wrap(domain.ErrServerError, "验证失败，请稍后重试", err)
	}
	if user != nil {
		return user, nil
	}

	passwordHash, err := randomPasswordHash()
	if err != nil {
		return nil, domain.Wrap(domain.ErrUserCreationFailed, "用户创建失败", err)
	}

	user, err = s.users.Create(ctx, postgres.CreateUserParams{
		PhoneNumber:    phone,
		Email:          domain.PlaceholderEmail(phone),
		Nickname:       domain.DerivedNickname(phone),
		PasswordHash:   passwordHash,
		MembershipType: domain.MembershipPerVisit,
		Status:         domain.StatusActive,
		Role:           domain.RoleUser,
	})
	if err != nil {
		logger.ErrorContext(ctx, "First-login user creation failed", "error", err, "phone", phone)
		return nil, domain.Wrap(domain.ErrUserCreationFailed, "用户创建失败", err)
	}

	logger.InfoContext(ctx, "New user registered via phone verification", "user_id", user.ID)
	if err := s.bus.Publish(ctx, events.SubjectUserRegistered, events.UserRegistered{
		UserID:       user.ID,
		PhoneNumber:  phone,
		RegisteredAt: s.now(),
	}); err != nil {
		logger.WarnContext(ctx, "Failed to publish user_registered event", "error", err)
	}

	return user, nil
}

func (s *authService) login(ctx context.Context, user *domain.User, method string) (*LoginResult, error) {
	token, err := auth.NewAccessToken(user.ID, user.PhoneNumber, user.Role, s.cfg.Auth.JWTSecret, s.cfg.Auth.AccessTokenTTL)
	if err != nil {
		return nil, domain.Wrap(domain.ErrServerError, "登录失败，请稍后重试", err)
	}

	if err := s.bus.Publish(ctx, events.SubjectUserLoggedIn, events.UserLoggedIn{
		UserID:      user.ID,
		PhoneNumber: user.PhoneNumber,
		Method:      method,
		LoggedInAt:  s.now(),
	}); err != nil {
		logger.WarnContext(ctx, "Failed to publish user_logged_in event", "error", err)
	}

	return &LoginResult{
		User:        user.ToUserInfo(),
		AccessToken: token,
		ExpiresIn:   int64(s.cfg.Auth.AccessTokenTTL.Seconds()),
	}, nil
}

// generateCode draws a uniform 6-digit code from crypto/rand.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+100000, 10), nil
}

// randomPasswordHash makes phone-registered accounts unlockable only
// through a later password reset; the plaintext is never kept.
func randomPasswordHash() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return argon2id.CreateHash(hex.EncodeToString(buf), argon2id.DefaultParams)
}
