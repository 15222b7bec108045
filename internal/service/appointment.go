package service

import (
	"context"
	"errors"
	"fmt"
	"html"

	"go.uber.org/zap"

	"github.com/iliyamo/clinic-manager/internal/access"
	"github.com/iliyamo/clinic-manager/internal/database"
	"github.com/iliyamo/clinic-manager/internal/model"
	"github.com/iliyamo/clinic-manager/internal/notify"
	"github.com/iliyamo/clinic-manager/internal/repository"
)

var (
	ErrInvalidTransition = errors.New("status transition not allowed")
	ErrInvalidInput      = errors.New("invalid input")
)

// transitions lists, per role, which statuses an appointment may move to
// from each status.  Completed, cancelled and no-show are terminal.
var transitions = map[string]map[string][]string{
	model.RoleAdmin: {
		model.StatusPending:     {model.StatusConfirmed, model.StatusCancelled},
		model.StatusConfirmed:   {model.StatusCompleted, model.StatusCancelled, model.StatusNoShow},
		model.StatusRescheduled: {model.StatusConfirmed, model.StatusCancelled},
	},
	model.RoleStaff: {
		model.StatusPending:     {model.StatusConfirmed, model.StatusCancelled},
		model.StatusConfirmed:   {model.StatusCompleted, model.StatusCancelled, model.StatusNoShow},
		model.StatusRescheduled: {model.StatusConfirmed, model.StatusCancelled},
	},
	model.RoleDoctor: {
		model.StatusPending:     {model.StatusConfirmed},
		model.StatusConfirmed:   {model.StatusCompleted, model.StatusNoShow},
		model.StatusRescheduled: {model.StatusConfirmed},
	},
	model.RolePatient: {
		model.StatusPending:     {model.StatusCancelled},
		model.StatusConfirmed:   {model.StatusCancelled},
		model.StatusRescheduled: {model.StatusCancelled},
	},
}

// CanTransition reports whether role may move an appointment from one
// status to another.
func CanTransition(role, from, to string) bool {
	for _, s := range transitions[role][from] {
		if s == to {
			return true
		}
	}
	return false
}

// reschedulable statuses; a moved appointment ends up "rescheduled".
func reschedulable(status string) bool {
	switch status {
	case model.StatusPending, model.StatusConfirmed, model.StatusRescheduled:
		return true
	}
	return false
}

// BookRequest is the input of Book.  PatientID is ignored for patients,
// who always book for themselves.
type BookRequest struct {
	PatientID uint64 `json:"patient_id"`
	SlotID    uint64 `json:"slot_id"`
	ServiceID uint64 `json:"service_id"`
	Reason    string `json:"reason"`
}

// AppointmentService books and moves appointments inside one tenant.
type AppointmentService struct {
	models *repository.Factory
	mail   notify.Sender
	logger *zap.Logger
}

func NewAppointmentService(models *repository.Factory, mail notify.Sender, logger *zap.Logger) *AppointmentService {
	return &AppointmentService{models: models, mail: mail, logger: logger}
}

// List returns the appointments actor may see: patients their own,
// doctors those they hold, everyone else all of them.
func (s *AppointmentService) List(ctx context.Context, conn *database.Conn, actor access.Session, q repository.Query) ([]model.Appointment, error) {
	switch actor.Role {
	case model.RolePatient:
		p, err := s.models.Patients(conn).FindOne(ctx, repository.Where("user_id", actor.UserID))
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return []model.Appointment{}, nil
			}
			return nil, err
		}
		q.Filters = append(q.Filters, repository.Where("patient_id", p.ID))
	case model.RoleDoctor:
		d, err := s.models.Doctors(conn).FindOne(ctx, repository.Where("user_id", actor.UserID))
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return []model.Appointment{}, nil
			}
			return nil, err
		}
		q.Filters = append(q.Filters, repository.Where("doctor_id", d.ID))
	}
	return s.models.Appointments(conn).Find(ctx, q)
}

// Get loads one appointment actor may see.
func (s *AppointmentService) Get(ctx context.Context, conn *database.Conn, actor access.Session, id uint64) (model.Appointment, error) {
	a, err := s.models.Appointments(conn).FindByID(ctx, id)
	if err != nil {
		return a, err
	}
	if err := s.checkOwner(ctx, conn, actor, a); err != nil {
		return model.Appointment{}, err
	}
	return a, nil
}

// Book claims the slot and creates a pending appointment for it.
func (s *AppointmentService) Book(ctx context.Context, conn *database.Conn, actor access.Session, req BookRequest) (model.Appointment, error) {
	var a model.Appointment
	if req.SlotID == 0 {
		return a, fmt.Errorf("slot_id: %w", ErrInvalidInput)
	}
	patients := s.models.Patients(conn)
	var patient model.Patient
	var err error
	if actor.Role == model.RolePatient {
		patient, err = patients.FindOne(ctx, repository.Where("user_id", actor.UserID))
		if errors.Is(err, repository.ErrNotFound) {
			return a, fmt.Errorf("no patient record for user %d: %w", actor.UserID, repository.ErrForbidden)
		}
	} else {
		if req.PatientID == 0 {
			return a, fmt.Errorf("patient_id: %w", ErrInvalidInput)
		}
		patient, err = patients.FindByID(ctx, req.PatientID)
	}
	if err != nil {
		return a, err
	}

	slots := s.models.Slots(conn)
	slot, err := slots.FindByID(ctx, req.SlotID)
	if err != nil {
		return a, err
	}
	if err := repository.ClaimSlot(ctx, slots, actor.UserID, slot.ID); err != nil {
		return a, err
	}

	a = model.Appointment{
		PatientID: patient.ID,
		DoctorID:  slot.DoctorID,
		SlotID:    slot.ID,
		ServiceID: req.ServiceID,
		Status:    model.StatusPending,
		Reason:    req.Reason,
		StartsAt:  slot.StartsAt,
		EndsAt:    slot.EndsAt,
	}
	if err := s.models.Appointments(conn).Create(ctx, actor.UserID, &a); err != nil {
		if rerr := repository.ReleaseSlot(ctx, slots, actor.UserID, slot.ID); rerr != nil {
			s.logger.Error("release slot after failed booking", zap.String("tenant", conn.Tenant()),
				zap.Uint64("slot_id", slot.ID), zap.Error(rerr))
		}
		return model.Appointment{}, err
	}
	s.notifyPatient(ctx, conn, patient, "Appointment requested",
		fmt.Sprintf("Your appointment on %s has been requested.", a.StartsAt.Format("Mon 2 Jan 2006 15:04")))
	return a, nil
}

// ChangeStatus moves appointment id to status to on behalf of actor.
// Cancelling frees the slot.
func (s *AppointmentService) ChangeStatus(ctx context.Context, conn *database.Conn, actor access.Session, id uint64, to string) (model.Appointment, error) {
	appts := s.models.Appointments(conn)
	a, err := appts.FindByID(ctx, id)
	if err != nil {
		return a, err
	}
	if err := s.checkOwner(ctx, conn, actor, a); err != nil {
		return model.Appointment{}, err
	}
	if !CanTransition(actor.Role, a.Status, to) {
		return model.Appointment{}, fmt.Errorf("%s: %s -> %s: %w", actor.Role, a.Status, to, ErrInvalidTransition)
	}
	a.Status = to
	if err := appts.Update(ctx, actor.UserID, &a); err != nil {
		return model.Appointment{}, err
	}
	if to == model.StatusCancelled {
		if err := repository.ReleaseSlot(ctx, s.models.Slots(conn), actor.UserID, a.SlotID); err != nil && !errors.Is(err, repository.ErrConflict) {
			s.logger.Error("release slot after cancel", zap.String("tenant", conn.Tenant()),
				zap.Uint64("slot_id", a.SlotID), zap.Error(err))
		}
	}
	if p, err := s.models.Patients(conn).FindByID(ctx, a.PatientID); err == nil {
		s.notifyPatient(ctx, conn, p, "Appointment "+statusLabel(to),
			fmt.Sprintf("Your appointment on %s is now %s.", a.StartsAt.Format("Mon 2 Jan 2006 15:04"), statusLabel(to)))
	}
	return a, nil
}

// Reschedule moves appointment id onto slotID: the new slot is claimed
// first, then the old one released.
func (s *AppointmentService) Reschedule(ctx context.Context, conn *database.Conn, actor access.Session, id, slotID uint64) (model.Appointment, error) {
	appts := s.models.Appointments(conn)
	slots := s.models.Slots(conn)
	a, err := appts.FindByID(ctx, id)
	if err != nil {
		return a, err
	}
	if err := s.checkOwner(ctx, conn, actor, a); err != nil {
		return model.Appointment{}, err
	}
	if !reschedulable(a.Status) {
		return model.Appointment{}, fmt.Errorf("reschedule from %s: %w", a.Status, ErrInvalidTransition)
	}
	if slotID == a.SlotID {
		return model.Appointment{}, fmt.Errorf("slot_id unchanged: %w", ErrInvalidInput)
	}
	slot, err := slots.FindByID(ctx, slotID)
	if err != nil {
		return model.Appointment{}, err
	}
	if err := repository.ClaimSlot(ctx, slots, actor.UserID, slot.ID); err != nil {
		return model.Appointment{}, err
	}

	oldSlot := a.SlotID
	a.SlotID, a.DoctorID = slot.ID, slot.DoctorID
	a.StartsAt, a.EndsAt = slot.StartsAt, slot.EndsAt
	a.Status = model.StatusRescheduled
	if err := appts.Update(ctx, actor.UserID, &a); err != nil {
		_ = repository.ReleaseSlot(ctx, slots, actor.UserID, slot.ID)
		return model.Appointment{}, err
	}
	if err := repository.ReleaseSlot(ctx, slots, actor.UserID, oldSlot); err != nil && !errors.Is(err, repository.ErrConflict) {
		s.logger.Error("release previous slot", zap.String("tenant", conn.Tenant()),
			zap.Uint64("slot_id", oldSlot), zap.Error(err))
	}
	if p, err := s.models.Patients(conn).FindByID(ctx, a.PatientID); err == nil {
		s.notifyPatient(ctx, conn, p, "Appointment rescheduled",
			fmt.Sprintf("Your appointment has moved to %s.", a.StartsAt.Format("Mon 2 Jan 2006 15:04")))
	}
	return a, nil
}

// checkOwner limits patients and doctors to their own appointments.
func (s *AppointmentService) checkOwner(ctx context.Context, conn *database.Conn, actor access.Session, a model.Appointment) error {
	switch actor.Role {
	case model.RolePatient:
		p, err := s.models.Patients(conn).FindByID(ctx, a.PatientID)
		if err != nil || p.UserID != actor.UserID {
			return fmt.Errorf("appointment %d: %w", a.ID, repository.ErrForbidden)
		}
	case model.RoleDoctor:
		d, err := s.models.Doctors(conn).FindByID(ctx, a.DoctorID)
		if err != nil || d.UserID != actor.UserID {
			return fmt.Errorf("appointment %d: %w", a.ID, repository.ErrForbidden)
		}
	}
	return nil
}

// notifyPatient mails the patient; failures are logged only.
func (s *AppointmentService) notifyPatient(ctx context.Context, conn *database.Conn, p model.Patient, subject, text string) {
	if s.mail == nil || p.Email == "" {
		return
	}
	body := fmt.Sprintf("<p>Dear %s,</p><p>%s</p>", html.EscapeString(p.FirstName), html.EscapeString(text))
	if err := s.mail.Send(ctx, notify.Message{To: p.Email, Subject: subject, HTML: body}); err != nil {
		s.logger.Warn("appointment email failed", zap.String("tenant", conn.Tenant()),
			zap.Uint64("patient_id", p.ID), zap.Error(err))
	}
}

func statusLabel(s string) string {
	if s == model.StatusNoShow {
		return "marked as missed"
	}
	return s
}
