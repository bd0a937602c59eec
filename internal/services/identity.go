package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/sitesnap/internal/apperr"
	"github.com/example/sitesnap/internal/database"
	"github.com/example/sitesnap/internal/logger"
	"github.com/example/sitesnap/internal/metrics"
	"github.com/example/sitesnap/internal/models"
	"github.com/example/sitesnap/internal/otp"
	"github.com/example/sitesnap/internal/policy"
	"github.com/example/sitesnap/internal/utils"
)

// Session is an issued token and the user it belongs to.
type Session struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// IdentityParams wires the collaborators of IdentityService.
type IdentityParams struct {
	DB         *gorm.DB
	Dispatcher Dispatcher
	Verifier   OAuthVerifier
	Attempts   AttemptLimiter
	Logger     *logger.Logger
	Metrics    *metrics.Metrics
	JWTSecret  string
	TokenTTL   time.Duration
	OTPTTL     time.Duration
	Now        func() time.Time
}

// IdentityService registers users, checks credentials and one-time codes,
// and issues session tokens.
type IdentityService struct {
	db         *gorm.DB
	dispatcher Dispatcher
	verifier   OAuthVerifier
	attempts   AttemptLimiter
	log        *logger.Logger
	metrics    *metrics.Metrics
	jwtSecret  string
	tokenTTL   time.Duration
	otpTTL     time.Duration
	now        func() time.Time
}

func NewIdentityService(p IdentityParams) (*IdentityService, error) {
	if p.DB == nil {
		return nil, errors.New("identity: db required")
	}
	if p.Dispatcher == nil {
		return nil, errors.New("identity: dispatcher required")
	}
	if strings.TrimSpace(p.JWTSecret) == "" {
		return nil, errors.New("identity: jwt secret required")
	}
	if p.TokenTTL <= 0 {
		return nil, errors.New("identity: token ttl must be positive")
	}
	if p.Verifier == nil {
		p.Verifier = unconfiguredVerifier{}
	}
	if p.Attempts == nil {
		p.Attempts = NoopAttemptLimiter{}
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	if p.OTPTTL <= 0 {
		p.OTPTTL = otp.DefaultTTL
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &IdentityService{
		db:         p.DB,
		dispatcher: p.Dispatcher,
		verifier:   p.Verifier,
		attempts:   p.Attempts,
		log:        p.Logger,
		metrics:    p.Metrics,
		jwtSecret:  p.JWTSecret,
		tokenTTL:   p.TokenTTL,
		otpTTL:     p.OTPTTL,
		now:        p.Now,
	}, nil
}

func normalizeEmail(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func normalizePhone(v string) string {
	return strings.ReplaceAll(strings.TrimSpace(v), " ", "")
}

// RegisterWithPassword creates an unverified email account and sends it a
// code. No token is issued until the code is confirmed.
func (s *IdentityService) RegisterWithPassword(ctx context.Context, email, password string) (*models.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperr.New(apperr.CodeValidation, "email and password are required")
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, apperr.ErrDuplicateIdentity
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, err
	}
	code, expires, err := s.newCode()
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:        &email,
		PasswordHash: hash,
		Role:         policy.RoleVisitor,
		OTPCode:      code,
		OTPExpiresAt: &expires,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return nil, apperr.ErrDuplicateIdentity
		}
		return nil, err
	}

	s.dispatch(ctx, otpMessage(ChannelEmail, email, code, s.otpTTL))
	return user, nil
}

// VerifyEmailOTP confirms the email code and signs the user in.
func (s *IdentityService) VerifyEmailOTP(ctx context.Context, email, code string) (*Session, error) {
	email = normalizeEmail(email)
	if email == "" || code == "" {
		return nil, apperr.New(apperr.CodeValidation, "email and otp are required")
	}
	return s.verifyCode(ctx, "email", email, code, "email_verified")
}

// SendPhoneOTP starts or restarts phone sign-in. The record is upserted on
// phone so concurrent requests for the same number converge on one user.
func (s *IdentityService) SendPhoneOTP(ctx context.Context, phone, email string) (*models.User, error) {
	phone = normalizePhone(phone)
	email = normalizeEmail(email)
	if phone == "" || email == "" {
		return nil, apperr.New(apperr.CodeValidation, "phone and email are required")
	}

	code, expires, err := s.newCode()
	if err != nil {
		return nil, err
	}

	candidate := &models.User{
		Phone:        &phone,
		Email:        &email,
		Role:         policy.RoleVisitor,
		OTPCode:      code,
		OTPExpiresAt: &expires,
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "phone"}},
		DoUpdates: clause.AssignmentColumns([]string{"otp_code", "otp_expires_at", "updated_at"}),
	}).Create(candidate).Error
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, apperr.ErrDuplicateIdentity
		}
		return nil, err
	}

	var user models.User
	if err := s.db.WithContext(ctx).Where("phone = ?", phone).First(&user).Error; err != nil {
		return nil, err
	}

	s.dispatch(ctx, otpMessage(ChannelSMS, phone, code, s.otpTTL))
	return &user, nil
}

// VerifyPhoneOTP confirms the phone code and signs the user in.
func (s *IdentityService) VerifyPhoneOTP(ctx context.Context, phone, code string) (*Session, error) {
	phone = normalizePhone(phone)
	if phone == "" || code == "" {
		return nil, apperr.New(apperr.CodeValidation, "phone and otp are required")
	}
	return s.verifyCode(ctx, "phone", phone, code, "phone_verified")
}

func (s *IdentityService) verifyCode(ctx context.Context, column, value, code, verifiedColumn string) (*Session, error) {
	attemptKey := column + ":" + value
	blocked, err := s.attempts.Blocked(ctx, attemptKey)
	if err != nil {
		s.log.Error(ctx, "otp.limiter_unavailable", err)
	} else if blocked {
		return nil, apperr.ErrOtpAttemptsExceeded
	}

	var user models.User
	if err := s.db.WithContext(ctx).Where(column+" = ?", value).First(&user).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	if user.OTPCode == "" || user.OTPExpiresAt == nil {
		return nil, apperr.ErrNoPendingOtp
	}
	if !otp.Verify(user.OTPCode, user.OTPExpiresAt, code, s.now()) {
		if err := s.attempts.Fail(ctx, attemptKey); err != nil {
			s.log.Error(ctx, "otp.limiter_unavailable", err)
		}
		return nil, apperr.ErrInvalidOrExpiredOtp
	}

	// Consume only if the code is still the one we checked, so a code can
	// succeed at most once even under concurrent verification.
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND otp_code = ?", user.ID, user.OTPCode).
		UpdateColumns(map[string]any{
			verifiedColumn:   true,
			"otp_code":       "",
			"otp_expires_at": nil,
			"updated_at":     s.now(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, apperr.ErrInvalidOrExpiredOtp
	}
	if err := s.attempts.Reset(ctx, attemptKey); err != nil {
		s.log.Error(ctx, "otp.limiter_unavailable", err)
	}

	return s.sessionFor(ctx, user.ID)
}

// LoginWithPassword checks email and password. Unknown emails and wrong
// passwords fail identically.
func (s *IdentityService) LoginWithPassword(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperr.New(apperr.CodeValidation, "email and password are required")
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil && !database.IsNotFound(err) {
		return nil, err
	}
	if !utils.CheckPassword(user.PasswordHash, password) {
		return nil, apperr.ErrInvalidCredentials
	}
	return s.sessionFor(ctx, user.ID)
}

// FederatedLogin signs in with a provider id token, linking or creating the
// account as needed.
func (s *IdentityService) FederatedLogin(ctx context.Context, rawToken string) (*Session, error) {
	identity, err := s.verifier.Verify(ctx, rawToken)
	if err != nil {
		if errors.Is(err, apperr.ErrProviderNotConfigured) || errors.Is(err, apperr.ErrInvalidToken) {
			return nil, err
		}
		return nil, apperr.Wrap(apperr.CodeUnauthorized, err, apperr.ErrInvalidToken.Message())
	}

	user, err := s.linkFederated(ctx, identity)
	if err != nil && database.IsUniqueViolation(err) {
		// Lost a race with a concurrent first login; the row exists now.
		user, err = s.linkFederated(ctx, identity)
	}
	if err != nil {
		return nil, err
	}
	return s.sessionFor(ctx, user.ID)
}

func (s *IdentityService) linkFederated(ctx context.Context, identity *OAuthIdentity) (*models.User, error) {
	db := s.db.WithContext(ctx)

	var user models.User
	query := db.Where("google_id = ?", identity.Subject)
	if identity.Email != "" {
		query = query.Or("email = ?", identity.Email)
	}
	err := query.Order("created_at asc").First(&user).Error
	switch {
	case err == nil:
		updates := map[string]any{}
		if user.GoogleID == nil || *user.GoogleID == "" {
			updates["google_id"] = identity.Subject
		}
		if identity.EmailVerified && !user.EmailVerified {
			updates["email_verified"] = true
		}
		if len(updates) > 0 {
			if err := db.Model(&user).Updates(updates).Error; err != nil {
				return nil, err
			}
		}
		return &user, nil
	case database.IsNotFound(err):
	default:
		return nil, err
	}

	subject := identity.Subject
	user = models.User{
		GoogleID:      &subject,
		EmailVerified: true,
		Role:          policy.RoleVisitor,
	}
	if identity.Email != "" {
		email := identity.Email
		user.Email = &email
	}
	if err := db.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// ResendOTP issues a fresh code for an existing identity on channel
// ("email" or "phone"), replacing any code in flight.
func (s *IdentityService) ResendOTP(ctx context.Context, channel, value string) error {
	var (
		column   string
		dispatch Channel
	)
	switch strings.ToLower(strings.TrimSpace(channel)) {
	case "email":
		column, dispatch, value = "email", ChannelEmail, normalizeEmail(value)
	case "phone", "sms":
		column, dispatch, value = "phone", ChannelSMS, normalizePhone(value)
	default:
		return apperr.New(apperr.CodeValidation, "type must be email or phone")
	}
	if value == "" {
		return apperr.New(apperr.CodeValidation, column+" is required")
	}

	code, expires, err := s.newCode()
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where(column+" = ?", value).
		UpdateColumns(map[string]any{
			"otp_code":       code,
			"otp_expires_at": expires,
			"updated_at":     s.now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.ErrNotFound
	}

	s.dispatch(ctx, otpMessage(dispatch, value, code, s.otpTTL))
	return nil
}

// CurrentUser loads the user a session token points at.
func (s *IdentityService) CurrentUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, apperr.ErrUnauthenticated
		}
		return nil, err
	}
	return &user, nil
}

// ParseToken returns the user id carried by a session token.
func (s *IdentityService) ParseToken(token string) (uuid.UUID, error) {
	id, err := utils.ParseToken(s.jwtSecret, token)
	if err != nil {
		return uuid.Nil, apperr.Wrap(apperr.CodeUnauthorized, err, apperr.ErrUnauthenticated.Message())
	}
	return id, nil
}

func (s *IdentityService) sessionFor(ctx context.Context, id uuid.UUID) (*Session, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Preload("Seller").First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	token, err := utils.GenerateToken(s.jwtSecret, user.ID, s.tokenTTL)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, User: &user}, nil
}

func (s *IdentityService) newCode() (string, time.Time, error) {
	code, err := otp.Generate()
	if err != nil {
		return "", time.Time{}, err
	}
	return code, otp.Expiration(s.now(), s.otpTTL), nil
}

// dispatch delivers a code. Delivery failures are logged; the caller can
// always ask for a resend.
func (s *IdentityService) dispatch(ctx context.Context, msg Message) {
	outcome := "sent"
	if err := s.dispatcher.Send(ctx, msg); err != nil {
		outcome = "failed"
		logCtx := s.log.WithField(ctx, "channel", string(msg.Channel))
		s.log.Error(logCtx, "otp.dispatch_failed", err)
	}
	if s.metrics != nil {
		s.metrics.OTPDispatch.WithLabelValues(string(msg.Channel), outcome).Inc()
	}
}
