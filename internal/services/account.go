package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/greasedesk/greasedesk/internal/apperr"
	"github.com/greasedesk/greasedesk/internal/db"
	"github.com/greasedesk/greasedesk/internal/mailer"
	"github.com/greasedesk/greasedesk/internal/metrics"
	"github.com/greasedesk/greasedesk/internal/models"
	"github.com/greasedesk/greasedesk/validation"
)

// MinPasswordLength applies to registration and invite acceptance.
const MinPasswordLength = 8

// AccountService registers garages, verifies email addresses and checks
// credentials.
type AccountService struct {
	base
	hasher PasswordHasher
	sender mailer.Sender
	opts   Options
}

func NewAccountService(conn *gorm.DB, hasher PasswordHasher, sender mailer.Sender, opts Options, m *metrics.Recorder, log *zap.Logger) *AccountService {
	return &AccountService{
		base:   newBase(conn, m, log),
		hasher: hasher,
		sender: sender,
		opts:   opts.withDefaults(),
	}
}

// RegisterInput is the sign-up form.
type RegisterInput struct {
	Name     string `json:"name" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,emailshape,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// RegisterResult reports the created user and whether the verification
// email went out.
type RegisterResult struct {
	User      *models.User
	Group     *models.Group
	EmailSent bool
}

// Register creates the tenant shell: a Group and its owning User, in one
// transaction. The verification token and email follow the commit; their
// failure leaves the account in place and is reported via EmailSent.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = models.NormalizeEmail(in.Email)

	v := validation.Violations{}
	validation.Struct(in, v)
	validation.MaxBytes("password", in.Password, MaxPasswordBytes, v)
	if err := v.Err("Please check the highlighted fields."); err != nil {
		return nil, err
	}

	var existing int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", in.Email).Count(&existing).Error; err != nil {
		return nil, s.fail(StepRegister, apperr.Internal(fmt.Errorf("check email: %w", err)))
	}
	if existing > 0 {
		return nil, apperr.ErrEmailAlreadyExists
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, s.fail(StepRegister, apperr.Internal(err))
	}

	group := &models.Group{
		GroupName:    fmt.Sprintf("%s's Garage", in.Name),
		BillingEmail: in.Email,
	}
	user := &models.User{
		Email:        in.Email,
		Name:         in.Name,
		PasswordHash: hash,
		Role:         models.RoleOwner,
		IsActive:     true,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(group).Error; err != nil {
			return fmt.Errorf("create group: %w", err)
		}
		user.GroupID = &group.ID
		if err := tx.Create(user).Error; err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(StepRegister, db.TranslateError(err, apperr.ErrEmailAlreadyExists))
	}
	s.metrics.Step(StepRegister, metrics.OutcomeCreated)
	s.log.Info("garage registered", zap.String("user_id", user.ID), zap.String("group_id", group.ID))

	sent := s.sendVerification(ctx, user)
	return &RegisterResult{User: user, Group: group, EmailSent: sent}, nil
}

// sendVerification replaces any outstanding token for the user and mails a
// fresh link. Failures are logged and reported as false.
func (s *AccountService) sendVerification(ctx context.Context, user *models.User) bool {
	log := s.log.With(zap.String("email", user.Email))
	token, err := newToken()
	if err != nil {
		log.Error("verification token not generated", zap.Error(err))
		return false
	}
	vt := models.VerificationToken{
		Token:      token,
		Identifier: user.Email,
		Expires:    s.now().Add(s.opts.VerificationTokenTTL),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("identifier = ?", user.Email).Delete(&models.VerificationToken{}).Error; err != nil {
			return err
		}
		return tx.Create(&vt).Error
	})
	if err != nil {
		log.Error("verification token not stored", zap.Error(err))
		return false
	}

	link := s.opts.BaseURL + "/api/auth/verify?token=" + url.QueryEscape(token)
	subject, html, err := mailer.VerificationEmail(user.Name, link, s.opts.TrialDays)
	if err != nil {
		log.Error("verification email not rendered", zap.Error(err))
		return false
	}
	sent := s.sender.Send(ctx, user.Email, subject, html)
	s.metrics.Email("verification", sent)
	if !sent {
		log.Warn("verification email not delivered")
	}
	return sent
}

// VerifyEmail consumes a verification token and returns the verified email.
// Expired tokens are kept so a resend can supersede them. A token consumed
// by a concurrent request reports ErrTokenNotFound.
func (s *AccountService) VerifyEmail(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", apperr.Validation("Invalid verification token.", validation.Violations{"token": "required"})
	}

	var vt models.VerificationToken
	err := s.db.WithContext(ctx).Where("token = ?", token).Take(&vt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", apperr.ErrTokenNotFound
	}
	if err != nil {
		return "", s.fail(StepVerify, apperr.Internal(fmt.Errorf("load token: %w", err)))
	}
	if vt.Expired(s.now()) {
		return "", apperr.ErrTokenExpired
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		del := tx.Where("token = ?", token).Delete(&models.VerificationToken{})
		if del.Error != nil {
			return fmt.Errorf("delete token: %w", del.Error)
		}
		if del.RowsAffected == 0 {
			return apperr.ErrTokenNotFound
		}
		upd := tx.Model(&models.User{}).Where("email = ?", vt.Identifier).Update("email_verified", s.now())
		if upd.Error != nil {
			return fmt.Errorf("mark verified: %w", upd.Error)
		}
		if upd.RowsAffected == 0 {
			return apperr.ErrUserNotFound
		}
		return nil
	})
	if err != nil {
		return "", s.fail(StepVerify, db.TranslateError(err, nil))
	}
	s.metrics.Step(StepVerify, metrics.OutcomeUpdated)
	return vt.Identifier, nil
}

// ResendVerification mails a new link to an unverified account. Unknown,
// pending or already verified addresses are left untouched and report false.
func (s *AccountService) ResendVerification(ctx context.Context, email string) (bool, error) {
	email = models.NormalizeEmail(email)
	if !validation.IsEmail(email) {
		return false, apperr.Validation("", validation.Violations{"email": "invalid_email"})
	}
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Internal(fmt.Errorf("load user: %w", err))
	}
	if user.EmailVerified != nil || user.Pending() {
		return false, nil
	}
	return s.sendVerification(ctx, &user), nil
}

// Authenticate checks credentials. Pending invites and inactive users never
// authenticate.
func (s *AccountService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	email = models.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperr.ErrInvalidCredentials
	}
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrInvalidCredentials
	}
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("load user: %w", err))
	}
	if user.Pending() || !user.IsActive || !s.hasher.Verify(password, user.PasswordHash) {
		return nil, apperr.ErrInvalidCredentials
	}
	return &user, nil
}

// UserByID loads a user for the session endpoint.
func (s *AccountService) UserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrUserNotFound
		}
		return nil, apperr.Internal(err)
	}
	return &user, nil
}
