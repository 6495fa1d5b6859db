package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/greasedesk/greasedesk/gate"
	"github.com/greasedesk/greasedesk/internal/apperr"
	"github.com/greasedesk/greasedesk/internal/db"
	"github.com/greasedesk/greasedesk/internal/mailer"
	"github.com/greasedesk/greasedesk/internal/metrics"
	"github.com/greasedesk/greasedesk/internal/models"
	"github.com/greasedesk/greasedesk/internal/policy"
	"github.com/greasedesk/greasedesk/internal/tenant"
	"github.com/greasedesk/greasedesk/validation"
)

// MaxInvitesPerRequest bounds one invitation batch.
const MaxInvitesPerRequest = 50

// InviteService creates pending team members and lets them accept.
type InviteService struct {
	base
	authz  Authorizer
	hasher PasswordHasher
	sender mailer.Sender
	opts   Options
}

func NewInviteService(conn *gorm.DB, authz Authorizer, hasher PasswordHasher, sender mailer.Sender, opts Options, m *metrics.Recorder, log *zap.Logger) *InviteService {
	return &InviteService{
		base:   newBase(conn, m, log),
		authz:  authz,
		hasher: hasher,
		sender: sender,
		opts:   opts.withDefaults(),
	}
}

// InviteInput is one invitee.
type InviteInput struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// InviteResult reports how many invitations were stored and which
// notifications could not be delivered.
type InviteResult struct {
	Count  int      `json:"count"`
	Failed []string `json:"failed"`
}

type pendingMail struct {
	email, link string
}

// Invite upserts a pending User and an Invite row per invitee in one
// transaction, then mails each invitee. Delivery failures do not undo the
// rows; they are listed in InviteResult.Failed.
func (s *InviteService) Invite(ctx context.Context, tc tenant.Context, invites []InviteInput) (*InviteResult, error) {
	if err := s.authz.Authorize(ctx, tc, gate.ActionInvite, policy.ResourceTeam, nil); err != nil {
		return nil, err
	}
	invites, err := s.validate(tc, invites)
	if err != nil {
		return nil, err
	}

	var garage string
	mails := make([]pendingMail, 0, len(invites))
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var group models.Group
		if err := tx.Where("id = ?", tc.GroupID).Take(&group).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.ErrTenantContextMissing
			}
			return fmt.Errorf("load group: %w", err)
		}
		garage = group.GroupName
		if group.TradingName != "" {
			garage = group.TradingName
		}

		for _, in := range invites {
			if err := s.upsertMember(tx, tc, in); err != nil {
				return err
			}
			link, err := s.upsertInvite(tx, tc, in)
			if err != nil {
				return err
			}
			mails = append(mails, pendingMail{email: in.Email, link: link})
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(StepInvite, db.TranslateError(err, nil))
	}
	s.metrics.Step(StepInvite, metrics.OutcomeCreated)

	res := &InviteResult{Count: len(invites), Failed: []string{}}
	for _, m := range mails {
		if !s.notify(ctx, garage, m) {
			res.Failed = append(res.Failed, m.email)
		}
	}
	logFromBase(s.log, tc).Info("team invited", zap.Int("count", res.Count), zap.Int("failed", len(res.Failed)))
	return res, nil
}

// validate normalizes emails and reports per-index violations.
func (s *InviteService) validate(tc tenant.Context, invites []InviteInput) ([]InviteInput, error) {
	if len(invites) == 0 {
		return nil, apperr.Validation("No valid invitations provided.", validation.Violations{"invites": "required"})
	}
	if len(invites) > MaxInvitesPerRequest {
		return nil, apperr.Validation(fmt.Sprintf("At most %d invitations per request.", MaxInvitesPerRequest),
			validation.Violations{"invites": "too_many"})
	}
	v := validation.Violations{}
	seen := make(map[string]bool, len(invites))
	out := make([]InviteInput, len(invites))
	for i, in := range invites {
		key := fmt.Sprintf("invites[%d]", i)
		in.Email = models.NormalizeEmail(in.Email)
		in.Role = strings.ToUpper(strings.TrimSpace(in.Role))
		switch {
		case !validation.IsEmail(in.Email):
			v[key+".email"] = "invalid_email"
		case seen[in.Email]:
			v[key+".email"] = "duplicate"
		case in.Email == models.NormalizeEmail(tc.Email):
			v[key+".email"] = "self_invite"
		}
		seen[in.Email] = true
		if !models.ValidRole(in.Role) {
			v[key+".role"] = "invalid_choice"
		}
		out[i] = in
	}
	if err := v.Err("Some invitations are invalid."); err != nil {
		return nil, err
	}
	for _, in := range out {
		if in.Role == models.RoleOwner && tc.Role != models.RoleOwner {
			return nil, apperr.ErrForbidden
		}
	}
	return out, nil
}

// upsertMember creates a pending user or re-homes an existing one onto the
// inviting tenant. Active members of another group are a conflict; members
// who outrank the caller cannot have their role changed.
func (s *InviteService) upsertMember(tx *gorm.DB, tc tenant.Context, in InviteInput) error {
	var siteID *string
	if tc.SiteID != "" {
		site := tc.SiteID
		siteID = &site
	}
	groupID := tc.GroupID

	var user models.User
	err := tx.Where("email = ?", in.Email).Take(&user).Error
	switch {
	case err == nil:
		if user.IsActive && user.GroupID != nil && *user.GroupID != tc.GroupID {
			return apperr.Wrap(apperr.ErrConflict, fmt.Errorf("%s belongs to another organisation", in.Email))
		}
		if models.Outranks(user.Role, tc.Role) {
			return apperr.ErrForbidden
		}
		if err := tx.Model(&user).Updates(map[string]any{
			"role":     in.Role,
			"group_id": groupID,
			"site_id":  siteID,
		}).Error; err != nil {
			return fmt.Errorf("update member: %w", err)
		}
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = models.User{
			Email:        in.Email,
			PasswordHash: models.InvitePendingHash,
			Role:         in.Role,
			GroupID:      &groupID,
			SiteID:       siteID,
			IsActive:     false,
		}
		if err := tx.Create(&user).Error; err != nil {
			return fmt.Errorf("create member: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("load member: %w", err)
	}
}

// upsertInvite refreshes the invitation for (group, email) with a new token.
func (s *InviteService) upsertInvite(tx *gorm.DB, tc tenant.Context, in InviteInput) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", err
	}
	link := s.opts.BaseURL + "/invite/accept?token=" + url.QueryEscape(token)
	var siteID *string
	if tc.SiteID != "" {
		site := tc.SiteID
		siteID = &site
	}
	inv := models.Invite{
		GroupID:    tc.GroupID,
		Email:      in.Email,
		SiteID:     siteID,
		Role:       in.Role,
		Token:      token,
		InviteLink: link,
		Status:     models.InviteStatusPending,
		ExpiresAt:  s.now().Add(s.opts.InvitationLifetime),
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "group_id"}, {Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"site_id", "role", "token", "invite_link", "status", "expires_at", "updated_at",
		}),
	}).Create(&inv).Error; err != nil {
		return "", fmt.Errorf("upsert invite: %w", err)
	}
	return link, nil
}

func (s *InviteService) notify(ctx context.Context, garage string, m pendingMail) bool {
	subject, html, err := mailer.InvitationEmail(garage, m.link)
	if err != nil {
		s.log.Error("invitation email not rendered", zap.String("email", m.email), zap.Error(err))
		return false
	}
	sent := s.sender.Send(ctx, m.email, subject, html)
	s.metrics.Email("invitation", sent)
	if !sent {
		s.log.Warn("invitation email not delivered", zap.String("email", m.email))
	}
	return sent
}

// AcceptInput completes an invitation.
type AcceptInput struct {
	Token    string `json:"token" validate:"required"`
	Name     string `json:"name" validate:"max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// Accept activates the invited user with the chosen password. Unknown or
// already used tokens report ErrTokenNotFound, stale ones ErrTokenExpired.
func (s *InviteService) Accept(ctx context.Context, in AcceptInput) (*models.User, error) {
	in.Token = strings.TrimSpace(in.Token)
	in.Name = strings.TrimSpace(in.Name)
	v := validation.Violations{}
	validation.Struct(in, v)
	validation.MaxBytes("password", in.Password, MaxPasswordBytes, v)
	if err := v.Err(""); err != nil {
		return nil, err
	}

	var inv models.Invite
	err := s.db.WithContext(ctx).Where("token = ?", in.Token).Take(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrTokenNotFound
	}
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("load invite: %w", err))
	}
	if inv.Status != models.InviteStatusPending {
		return nil, apperr.ErrTokenNotFound
	}
	if s.now().After(inv.ExpiresAt) {
		return nil, apperr.ErrTokenExpired
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	var user models.User
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upd := tx.Model(&models.Invite{}).
			Where("id = ? AND status = ?", inv.ID, models.InviteStatusPending).
			Update("status", models.InviteStatusAccepted)
		if upd.Error != nil {
			return fmt.Errorf("accept invite: %w", upd.Error)
		}
		if upd.RowsAffected == 0 {
			return apperr.ErrTokenNotFound
		}
		if err := tx.Where("email = ? AND group_id = ?", inv.Email, inv.GroupID).Take(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.ErrTokenNotFound
			}
			return fmt.Errorf("load member: %w", err)
		}
		fields := map[string]any{
			"password_hash":  hash,
			"is_active":      true,
			"email_verified": s.now(),
		}
		if in.Name != "" {
			fields["name"] = in.Name
		}
		if err := tx.Model(&user).Updates(fields).Error; err != nil {
			return fmt.Errorf("activate member: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, db.TranslateError(err, nil)
	}
	s.log.Info("invitation accepted", zap.String("user_id", user.ID), zap.String("group_id", inv.GroupID))
	return &user, nil
}

// Members lists the users of the caller's group.
func (s *InviteService) Members(ctx context.Context, tc tenant.Context) ([]models.User, error) {
	if err := s.authz.Authorize(ctx, tc, gate.ActionList, policy.ResourceTeam, nil); err != nil {
		return nil, err
	}
	var users []models.User
	if err := s.db.WithContext(ctx).Where("group_id = ?", tc.GroupID).Order("created_at ASC").Find(&users).Error; err != nil {
		return nil, apperr.Internal(fmt.Errorf("list members: %w", err))
	}
	return users, nil
}
