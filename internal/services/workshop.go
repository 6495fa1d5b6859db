package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/greasedesk/greasedesk/gate"
	"github.com/greasedesk/greasedesk/internal/apperr"
	"github.com/greasedesk/greasedesk/internal/db"
	"github.com/greasedesk/greasedesk/internal/metrics"
	"github.com/greasedesk/greasedesk/internal/models"
	"github.com/greasedesk/greasedesk/internal/policy"
	"github.com/greasedesk/greasedesk/internal/tenant"
	"github.com/greasedesk/greasedesk/validation"
)

// WorkshopService serves the day-to-day views of a site: today's bookings
// and the job cards worked from them.
type WorkshopService struct {
	base
	authz Authorizer
}

func NewWorkshopService(conn *gorm.DB, authz Authorizer, m *metrics.Recorder, log *zap.Logger) *WorkshopService {
	return &WorkshopService{base: newBase(conn, m, log), authz: authz}
}

// siteFor loads the caller's site after the role check.
func (s *WorkshopService) siteFor(ctx context.Context, tc tenant.Context, action gate.Action, resource string) (*models.Site, error) {
	if err := tc.RequireSite(); err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, tc, action, resource, nil); err != nil {
		return nil, err
	}
	var site models.Site
	if err := s.db.WithContext(ctx).Where("id = ? AND group_id = ?", tc.SiteID, tc.GroupID).Take(&site).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrCrossTenant
		}
		return nil, apperr.Internal(fmt.Errorf("load site: %w", err))
	}
	return &site, nil
}

// TodayWindow returns [start, end) of the calendar day containing now in loc.
func TodayWindow(now time.Time, loc *time.Location) (time.Time, time.Time) {
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// ListToday returns the bookings of the caller's site scheduled for the
// local day. tz overrides the site timezone when non-empty.
func (s *WorkshopService) ListToday(ctx context.Context, tc tenant.Context, tz string) ([]models.Booking, error) {
	site, err := s.siteFor(ctx, tc, gate.ActionList, policy.ResourceBooking)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(tz)
	if name == "" {
		name = site.Timezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, apperr.Validation("Unknown timezone.", validation.Violations{"tz": "invalid_timezone"})
	}
	start, end := TodayWindow(s.now(), loc)

	var rows []models.Booking
	err = s.db.WithContext(ctx).
		Where("group_id = ? AND site_id = ? AND scheduled_at >= ? AND scheduled_at < ?", tc.GroupID, tc.SiteID, start.UTC(), end.UTC()).
		Order("scheduled_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("list bookings: %w", err))
	}
	return rows, nil
}

// BookingInput is the new-booking form.
type BookingInput struct {
	ScheduledAt  time.Time `json:"scheduledAt" validate:"required"`
	CustomerName string    `json:"customerName" validate:"max=255"`
	Vehicle      string    `json:"vehicle" validate:"required,max=255"`
	Registration string    `json:"registration" validate:"required,max=20"`
	Service      string    `json:"service" validate:"required,max=255"`
}

// CreateBooking books a slot at the caller's site.
func (s *WorkshopService) CreateBooking(ctx context.Context, tc tenant.Context, in BookingInput) (*models.Booking, error) {
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.Vehicle = strings.TrimSpace(in.Vehicle)
	in.Registration = normalizeRegistration(in.Registration)
	in.Service = strings.TrimSpace(in.Service)
	v := validation.Violations{}
	validation.Struct(in, v)
	if err := v.Err("Invalid booking."); err != nil {
		return nil, err
	}
	site, err := s.siteFor(ctx, tc, gate.ActionCreate, policy.ResourceBooking)
	if err != nil {
		return nil, err
	}
	b := &models.Booking{
		GroupID:      site.GroupID,
		SiteID:       site.ID,
		ScheduledAt:  in.ScheduledAt.UTC(),
		CustomerName: in.CustomerName,
		Vehicle:      in.Vehicle,
		Registration: in.Registration,
		Service:      in.Service,
		Status:       models.BookingBooked,
	}
	if err := s.db.WithContext(ctx).Create(b).Error; err != nil {
		return nil, db.TranslateError(err, nil)
	}
	logFromBase(s.log, tc).Info("booking created", zap.String("booking_id", b.ID))
	return b, nil
}

func normalizeRegistration(reg string) string {
	return strings.ToUpper(strings.Join(strings.Fields(reg), " "))
}

// JobCardInput opens a job card, either from a booking or ad hoc.
type JobCardInput struct {
	BookingID    string   `json:"bookingId"`
	Technician   string   `json:"technician" validate:"max=255"`
	Vehicle      string   `json:"vehicle" validate:"max=255"`
	Registration string   `json:"registration" validate:"max=20"`
	MileageKm    int      `json:"mileageKm" validate:"gte=0"`
	Tasks        []string `json:"tasks" validate:"max=100,dive,required,max=255"`
}

// CreateJobCard opens a job card at the caller's site. With a booking, the
// vehicle details are copied from it and the booking moves to in_progress.
func (s *WorkshopService) CreateJobCard(ctx context.Context, tc tenant.Context, in JobCardInput) (*models.JobCard, error) {
	in.BookingID = strings.TrimSpace(in.BookingID)
	in.Technician = strings.TrimSpace(in.Technician)
	in.Vehicle = strings.TrimSpace(in.Vehicle)
	in.Registration = normalizeRegistration(in.Registration)
	v := validation.Violations{}
	validation.Struct(in, v)
	if in.BookingID == "" {
		validation.Required("vehicle", in.Vehicle, v)
		validation.Required("registration", in.Registration, v)
	}
	if err := v.Err("Invalid job card."); err != nil {
		return nil, err
	}
	site, err := s.siteFor(ctx, tc, gate.ActionCreate, policy.ResourceJobCard)
	if err != nil {
		return nil, err
	}

	card := &models.JobCard{
		GroupID:      site.GroupID,
		SiteID:       site.ID,
		Technician:   in.Technician,
		Vehicle:      in.Vehicle,
		Registration: in.Registration,
		MileageKm:    in.MileageKm,
		IntakeSlots:  append(datatypes.JSONSlice[string]{}, models.DefaultIntakeSlots...),
		Status:       models.JobCardOpen,
	}
	for i, title := range in.Tasks {
		card.Tasks = append(card.Tasks, models.JobCardTask{Title: strings.TrimSpace(title), Position: i})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.BookingID != "" {
			var b models.Booking
			if err := tx.Where("id = ?", in.BookingID).Take(&b).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return apperr.ErrNotFound
				}
				return fmt.Errorf("load booking: %w", err)
			}
			if err := s.authz.Authorize(ctx, tc, gate.ActionUpdate, policy.ResourceBooking, &b); err != nil {
				return err
			}
			card.BookingID = &b.ID
			if card.Vehicle == "" {
				card.Vehicle = b.Vehicle
			}
			if card.Registration == "" {
				card.Registration = b.Registration
			}
			if len(card.Tasks) == 0 && b.Service != "" {
				card.Tasks = []models.JobCardTask{{Title: b.Service}}
			}
			if err := tx.Model(&b).Where("status = ?", models.BookingBooked).
				Update("status", models.BookingInProgress).Error; err != nil {
				return fmt.Errorf("start booking: %w", err)
			}
		}
		if err := tx.Create(card).Error; err != nil {
			return fmt.Errorf("create job card: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, db.TranslateError(err, nil)
	}
	logFromBase(s.log, tc).Info("job card opened", zap.String("job_card_id", card.ID))
	return card, nil
}

// GetJobCard loads a job card of the caller's site with its tasks in order.
func (s *WorkshopService) GetJobCard(ctx context.Context, tc tenant.Context, id string) (*models.JobCard, error) {
	if err := tc.RequireSite(); err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, tc, gate.ActionView, policy.ResourceJobCard, nil); err != nil {
		return nil, err
	}
	card, err := loadJobCard(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, tc, gate.ActionView, policy.ResourceJobCard, card); err != nil {
		return nil, err
	}
	return card, nil
}

func loadJobCard(q *gorm.DB, id string) (*models.JobCard, error) {
	var card models.JobCard
	err := q.Preload("Tasks", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("position ASC")
	}).Where("id = ?", id).Take(&card).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("load job card: %w", err))
	}
	return &card, nil
}

// ToggleTask flips the done flag of one task and returns the updated card.
func (s *WorkshopService) ToggleTask(ctx context.Context, tc tenant.Context, cardID, taskID string) (*models.JobCard, error) {
	if err := tc.RequireSite(); err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, tc, gate.ActionUpdate, policy.ResourceJobCard, nil); err != nil {
		return nil, err
	}
	var card *models.JobCard
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := loadJobCard(tx, cardID)
		if err != nil {
			return err
		}
		if err := s.authz.Authorize(ctx, tc, gate.ActionUpdate, policy.ResourceJobCard, c); err != nil {
			return err
		}
		if c.Status == models.JobCardClosed {
			return apperr.Wrap(apperr.ErrConflict, errors.New("job card is closed"))
		}
		upd := tx.Model(&models.JobCardTask{}).
			Where("id = ? AND job_card_id = ?", taskID, c.ID).
			Update("done", gorm.Expr("NOT done"))
		if upd.Error != nil {
			return fmt.Errorf("toggle task: %w", upd.Error)
		}
		if upd.RowsAffected == 0 {
			return apperr.ErrNotFound
		}
		card, err = loadJobCard(tx, c.ID)
		return err
	})
	if err != nil {
		return nil, db.TranslateError(err, nil)
	}
	return card, nil
}
