// Package services holds the onboarding state machine, team invitations,
// rates/settings updates and the workshop views. Every mutation runs in a
// single store transaction and is scoped by a resolved tenant.Context.
package services

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/greasedesk/greasedesk/internal/metrics"
)

// Onboarding step names used as metric labels.
const (
	StepRegister   = "register"
	StepVerify     = "verify_email"
	StepStartTrial = "start_trial"
	StepSetup      = "setup"
	StepRates      = "rates"
	StepInvite     = "invite"
	StepComplete   = "complete"
)

// Options carries the settings shared by the services.
type Options struct {
	BaseURL              string
	VerificationTokenTTL time.Duration
	InvitationLifetime   time.Duration
	TrialDays            int
}

func (o Options) withDefaults() Options {
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	if o.VerificationTokenTTL <= 0 {
		o.VerificationTokenTTL = 24 * time.Hour
	}
	if o.InvitationLifetime <= 0 {
		o.InvitationLifetime = 7 * 24 * time.Hour
	}
	if o.TrialDays <= 0 {
		o.TrialDays = 30
	}
	return o
}

// base is embedded by every service.
type base struct {
	db      *gorm.DB
	metrics *metrics.Recorder
	log     *zap.Logger
	now     func() time.Time
}

func newBase(db *gorm.DB, m *metrics.Recorder, log *zap.Logger) base {
	if log == nil {
		log = zap.NewNop()
	}
	return base{db: db, metrics: m, log: log, now: time.Now}
}

// SetClock replaces the time source. Tests use it to control expiry.
func (b *base) SetClock(now func() time.Time) { b.now = now }

// MaxPasswordBytes is bcrypt's input limit.
const MaxPasswordBytes = 72

// tokenBytes gives 256 bits of entropy per token.
const tokenBytes = 32

// newToken returns a random hex-encoded secret.
func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// fail records a failed step and returns err unchanged.
func (b *base) fail(step string, err error) error {
	b.metrics.Step(step, metrics.OutcomeFailed)
	return err
}

func joinAddress(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}
